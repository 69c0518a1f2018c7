package config

import "github.com/crystalphantom/pgit-cli/internal/pgiterr"

// Migrate advances an older manifest to CurrentSchemaVersion. "Schema
// version is monotonically advanced; older versions must migrate before
// write" (spec.md 3) — this is that migration chain, a concrete caller
// for an invariant the distilled spec only states (SPEC_FULL.md
// SUPPLEMENTED FEATURES).
func Migrate(m *Manifest) (*Manifest, error) {
	switch m.Version {
	case CurrentSchemaVersion:
		return m, nil
	case "1.0", "":
		migrateV1ToV2(m)
		return m, nil
	default:
		return nil, pgiterr.NewConfigMigrationError("unknown manifest schema version: "+m.Version, nil)
	}
}

// migrateV1ToV2 backfills the gitExclude settings sub-tree introduced in
// 2.0 and the maxBackups field, since 1.0 manifests predate both.
func migrateV1ToV2(m *Manifest) {
	if m.Settings.GitExclude == (ExcludeSettings{}) {
		m.Settings.GitExclude = DefaultManifest("", "").Settings.GitExclude
	}
	if m.Settings.GitExclude.MarkerComment == "" {
		m.Settings.GitExclude.MarkerComment = DefaultMarkerComment
	}
	if m.Settings.GitExclude.FallbackBehavior == "" {
		m.Settings.GitExclude.FallbackBehavior = FallbackWarn
	}
	if m.Settings.MaxBackups == 0 {
		m.Settings.MaxBackups = 10
	}
	if m.PrivateRepoPath == "" {
		m.PrivateRepoPath = ".git-private"
	}
	if m.StoragePath == "" {
		m.StoragePath = ".private-storage"
	}
	m.Version = CurrentSchemaVersion
}
