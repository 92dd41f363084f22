package activefs

import "strings"

// MatchGlob reports whether name matches the shell-style glob pattern over
// /-separated segments. Supported tokens: * (any run within a segment), ?
// (one character within a segment), [...] (character class, same rules as
// path/filepath.Match within a segment), and ** (any number of whole
// segments, including zero) - the one extension path/filepath.Match cannot
// express, which is why this is hand-rolled instead of delegating to it.
func MatchGlob(pattern, name string) (bool, error) {
	if !validGlob(pattern) {
		return false, ErrMalformedGlob
	}
	patSegs := strings.Split(pattern, "/")
	nameSegs := strings.Split(name, "/")
	return matchSegments(patSegs, nameSegs)
}

func validGlob(pattern string) bool {
	depth := 0
	for _, r := range pattern {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func matchSegments(pat, name []string) (bool, error) {
	if len(pat) == 0 {
		return len(name) == 0, nil
	}
	if pat[0] == "**" {
		if matched, err := matchSegments(pat[1:], name); err != nil || matched {
			return matched, err
		}
		if len(name) == 0 {
			return false, nil
		}
		return matchSegments(pat, name[1:])
	}
	if len(name) == 0 {
		return false, nil
	}
	ok, err := matchSegment(pat[0], name[0])
	if err != nil || !ok {
		return false, err
	}
	return matchSegments(pat[1:], name[1:])
}

// matchSegment matches a single path segment against *, ?, [...] tokens.
func matchSegment(pat, seg string) (bool, error) {
	return matchHere(pat, seg)
}

func matchHere(pat, s string) (bool, error) {
	for len(pat) > 0 {
		switch pat[0] {
		case '*':
			// Try every split point, shortest match first; segments are
			// small, so there's no backtracking cost concern here.
			for i := 0; i <= len(s); i++ {
				if ok, err := matchHere(pat[1:], s[i:]); err != nil {
					return false, err
				} else if ok {
					return true, nil
				}
			}
			return false, nil
		case '?':
			if len(s) == 0 {
				return false, nil
			}
			pat, s = pat[1:], s[1:]
		case '[':
			if len(s) == 0 {
				return false, nil
			}
			end := strings.IndexByte(pat, ']')
			if end < 0 {
				return false, ErrMalformedGlob
			}
			class := pat[1:end]
			neg := false
			if strings.HasPrefix(class, "!") || strings.HasPrefix(class, "^") {
				neg = true
				class = class[1:]
			}
			if matchClass(class, s[0]) == neg {
				return false, nil
			}
			pat, s = pat[end+1:], s[1:]
		default:
			if len(s) == 0 || pat[0] != s[0] {
				return false, nil
			}
			pat, s = pat[1:], s[1:]
		}
	}
	return len(s) == 0, nil
}

func matchClass(class string, c byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == c {
			return true
		}
	}
	return false
}
