package affix

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsValidKey reports whether k is usable as a storage key. A key must:
//   - not be empty, ".", or "/"
//   - be relative (no leading "/") and not end with "/"
//   - not contain "..", "//", or "/./" segments
//   - not contain \ ? # or ~
//   - be valid UTF-8 without control characters
//
// Unlike object paths served over HTTP, spaces are allowed because they
// routinely appear in uploaded file names.
func IsValidKey(k string) bool {
	if k == "" || k == "/" || k == "." {
		return false
	}

	if k[0] == '/' || strings.HasSuffix(k, "/") {
		return false
	}

	if strings.Contains(k, "..") || strings.Contains(k, "//") {
		return false
	}

	if strings.ContainsAny(k, `\?#~`) {
		return false
	}

	if !utf8.ValidString(k) {
		return false
	}

	if strings.HasPrefix(k, "./") || strings.Contains(k, "/./") || strings.HasSuffix(k, "/.") {
		return false
	}

	for _, r := range k {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	return true
}

// SanitizeFilename strips directory components and replaces characters that
// cannot appear in a storage key with underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError, r < 0x20, r == 0x7f:
			b.WriteRune('_')
		case strings.ContainsRune(`?#~:*"<>|`, r):
			b.WriteRune('_')
		case unicode.IsSpace(r) && r != ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	if out == "" {
		return "file"
	}
	return out
}
