package vcsadapter

import "strings"

// MatchesPattern reports whether literal matches pattern using the
// simplified, best-effort gitignore subset spec.md 4.D documents: `*`
// matches any run of characters, `?` matches a single character, `[...]`
// is a character class, everything else is literal. The match is
// anchored on both ends. This intentionally does not implement full
// gitignore semantics (negation, leading-slash anchoring, trailing-slash
// directory-only, double-star) — per the spec's Design Notes, that
// upgrade is optional and this detector must never reject input, only
// warn.
func MatchesPattern(pattern, literal string) bool {
	return matchGlob([]rune(pattern), []rune(literal))
}

func matchGlob(pattern, s []rune) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if matchGlob(pattern[1:], s[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	case '[':
		end := indexRune(pattern, ']')
		if end < 0 || len(s) == 0 {
			return false
		}
		class := pattern[1:end]
		if !matchClass(class, s[0]) {
			return false
		}
		return matchGlob(pattern[end+1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	}
}

func indexRune(rs []rune, target rune) int {
	for i, r := range rs {
		if r == target {
			return i
		}
	}
	return -1
}

func matchClass(class []rune, c rune) bool {
	negate := false
	if len(class) > 0 && class[0] == '!' {
		negate = true
		class = class[1:]
	}
	found := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if c >= class[i] && c <= class[i+2] {
				found = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			found = true
		}
	}
	return found != negate
}

// IsWildcardPattern reports whether pattern uses any glob metacharacter,
// i.e. is not a plain literal line.
func IsWildcardPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Conflict describes a new path matched by, or matching, an existing
// exclude line — surfaced as a warning only, never a rejection.
type Conflict struct {
	Path          string
	ExistingLine  string
	Redundant     bool // the new pattern would itself match existing literals
}

// DetectConflicts compares newPaths against existingLines and reports
// best-effort conflicts/redundancies for logging. It never rejects
// input.
func DetectConflicts(newPaths, existingLines []string) []Conflict {
	var conflicts []Conflict
	for _, np := range newPaths {
		for _, el := range existingLines {
			if el == "" || strings.HasPrefix(strings.TrimSpace(el), "#") {
				continue
			}
			if IsWildcardPattern(el) && !IsWildcardPattern(np) && MatchesPattern(el, np) {
				conflicts = append(conflicts, Conflict{Path: np, ExistingLine: el})
			}
			if IsWildcardPattern(np) && !IsWildcardPattern(el) && MatchesPattern(np, el) {
				conflicts = append(conflicts, Conflict{Path: np, ExistingLine: el, Redundant: true})
			}
		}
	}
	return conflicts
}
