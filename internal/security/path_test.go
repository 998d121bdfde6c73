package security

import "testing"

func TestValidatePathAccepts(t *testing.T) {
	valid := []string{
		"src/main.go",
		"package.json",
		"src/components/Button.tsx",
		".gitignore",
		".github/workflows/ci.yml",
		".env.example",
		"docs/README.md",
		"deeply/nested/dir/file.txt",
	}
	for _, p := range valid {
		if err := ValidatePath(p); err != nil {
			t.Errorf("expected valid path %q, got: %v", p, err)
		}
	}
}

func TestValidatePathRejectsAbsolute(t *testing.T) {
	for _, p := range []string{"/etc/passwd", "/tmp/x", `\windows\system32`, `C:\Users\x`, "C:/Users/x"} {
		if err := ValidatePath(p); err == nil {
			t.Errorf("expected rejection for absolute path %q", p)
		}
	}
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	for _, p := range []string{"../secrets.txt", "src/../../etc/passwd", "a/b/../../../c"} {
		if err := ValidatePath(p); err == nil {
			t.Errorf("expected rejection for traversal %q", p)
		}
	}
}

func TestValidatePathRejectsSystemDirs(t *testing.T) {
	for _, p := range []string{"etc/passwd", "usr/local/bin/x", "var/log/app.log", "proc/self/environ"} {
		if err := ValidatePath(p); err == nil {
			t.Errorf("expected rejection for system dir %q", p)
		}
	}
}

func TestValidatePathRejectsDisallowedHidden(t *testing.T) {
	for _, p := range []string{".env", ".ssh/id_rsa", "src/.secret"} {
		if err := ValidatePath(p); err == nil {
			t.Errorf("expected rejection for hidden file %q", p)
		}
	}
}

func TestValidatePathRejectsEmpty(t *testing.T) {
	if err := ValidatePath("  "); err == nil {
		t.Error("expected rejection for empty path")
	}
}
