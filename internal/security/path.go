package security

import (
	"fmt"
	"path"
	"strings"
)

// systemPrefixes are directory roots a file action may never write into,
// even via a relative path that normalizes onto them.
var systemPrefixes = []string{
	"etc", "usr", "bin", "sbin", "lib", "lib64",
	"boot", "dev", "proc", "sys", "var", "root",
	"windows", "system32", "program files",
}

// allowedHidden lists the hidden files and directories a project is
// expected to contain. Everything else dot-prefixed is rejected.
var allowedHidden = []string{
	".gitignore", ".gitattributes", ".env.example",
	".eslintrc", ".eslintrc.json", ".prettierrc", ".prettierrc.json",
	".editorconfig", ".npmrc", ".nvmrc", ".babelrc",
	".github", ".vscode",
}

// ValidatePath rejects paths that escape or could escape the project root:
// absolute paths, traversal segments, writes into system directories, and
// hidden files outside a small allowlist. Paths are judged as written, not
// resolved against a real filesystem.
func ValidatePath(p string) error {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return fmt.Errorf("path is empty")
	}

	if strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "\\") || hasDrivePrefix(trimmed) {
		return fmt.Errorf("absolute path not allowed: %s", trimmed)
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return fmt.Errorf("path traversal not allowed: %s", trimmed)
		}
	}

	clean := path.Clean(normalized)
	lowerFirst := strings.ToLower(firstSegment(clean))
	for _, sys := range systemPrefixes {
		if lowerFirst == sys {
			return fmt.Errorf("write into system directory not allowed: %s", trimmed)
		}
	}

	for _, seg := range strings.Split(clean, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && !isAllowedHidden(seg) {
			return fmt.Errorf("hidden file not allowed: %s", seg)
		}
	}

	return nil
}

func firstSegment(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

func isAllowedHidden(seg string) bool {
	lower := strings.ToLower(seg)
	for _, a := range allowedHidden {
		if lower == a {
			return true
		}
	}
	return false
}

// hasDrivePrefix detects Windows-style absolute paths like "C:\" or "C:/".
func hasDrivePrefix(p string) bool {
	if len(p) < 3 {
		return false
	}
	c := p[0]
	isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	return isLetter && p[1] == ':' && (p[2] == '/' || p[2] == '\\')
}
