package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, d := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.Symlink(unsafeDir, filepath.Join(safeDir, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"plain file", filepath.Join(safeDir, "scan.asc"), false},
		{"nested new file", filepath.Join(safeDir, "a", "b", "scan.asc"), false},
		{"dir itself", safeDir, false},
		{"dot dot escape", filepath.Join(safeDir, "..", "unsafe", "x"), true},
		{"sibling", filepath.Join(unsafeDir, "x"), true},
		{"symlink escape", filepath.Join(safeDir, "link", "new.asc"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safeDir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePathWithinDirectory(%s) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideAllowedDirs) {
				t.Errorf("expected ErrOutsideAllowedDirs, got %v", err)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "f"), []string{a, b}); err != nil {
		t.Errorf("expected path in second dir to pass: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "f"), nil); err == nil {
		t.Error("expected error with no dirs")
	}
	if err := ValidatePathWithinAllowedDirs("/definitely/not/here", []string{a}); err == nil {
		t.Error("expected error for path outside")
	}
}

func TestValidateExportPath(t *testing.T) {
	if err := ValidateExportPath(filepath.Join(os.TempDir(), "cloud.asc")); err != nil {
		t.Errorf("temp dir should be allowed: %v", err)
	}
	cwd, _ := os.Getwd()
	if err := ValidateExportPath(filepath.Join(cwd, "cloud.asc")); err != nil {
		t.Errorf("cwd should be allowed: %v", err)
	}
	extra := t.TempDir()
	if err := ValidateExportPath(filepath.Join(extra, "x.png"), extra); err != nil {
		t.Errorf("extra dir should be allowed: %v", err)
	}
	if err := ValidateExportPath("/proc/self/cloud.asc"); err == nil {
		t.Error("expected /proc to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                 "unknown",
		"scan-01.asc":      "scan-01.asc",
		"../../etc/passwd": "etc_passwd",
		"a b\tc":           "a_b_c",
		"session id / 42":  "session_id_42",
		"___":              "unknown",
		"3f2a0c1e-uuid":    "3f2a0c1e-uuid",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("x", 500)); len(got) != maxFilenameLen {
		t.Errorf("expected length %d, got %d", maxFilenameLen, len(got))
	}
}
