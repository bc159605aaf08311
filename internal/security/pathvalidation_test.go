package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2026"), 0o755))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(dir, "trail.gpx"), false},
		{"nested new file", filepath.Join(dir, "2026", "04", "trail.gpx"), false},
		{"dir itself", dir, false},
		{"dot dot", filepath.Join(dir, "..", "trail.gpx"), true},
		{"dot dot inside name", filepath.Join(dir, "2026", "..", "..", "etc", "passwd"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePathWithinDirectory_Symlink(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(link, "trail.gpx"), dir))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cami de Cavalls", "Cami_de_Cavalls"},
		{"Maó - Es Grau", "Ma_-_Es_Grau"},
		{"../../etc/passwd", "etc_passwd"},
		{"  ", "unnamed"},
		{"", "unnamed"},
		{"stage-3.v2", "stage-3.v2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
	long := SanitizeFilename(strings.Repeat("a", 100))
	assert.Len(t, long, maxFilenameLen)
}
