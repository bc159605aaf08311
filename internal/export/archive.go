package export

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trail.report/internal/fsutil"
	"github.com/banshee-data/trail.report/internal/monitoring"
	"github.com/banshee-data/trail.report/internal/security"
	"github.com/banshee-data/trail.report/internal/tracking"
)

var logf = monitoring.Component("export")

// Archiver writes every completed session to a directory tree, one file per
// format, under <dir>/<year>/.
type Archiver struct {
	fs      fsutil.FileSystem
	dir     string
	formats []Format
}

// NewArchiver returns an Archiver writing formats (GPX when empty) below dir.
func NewArchiver(fsys fsutil.FileSystem, dir string, formats []Format) *Archiver {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if len(formats) == 0 {
		formats = []Format{FormatGPX}
	}
	return &Archiver{fs: fsys, dir: dir, formats: formats}
}

// Path returns where s is archived in format f.
func (a *Archiver) Path(s *tracking.Session, f Format) string {
	name := Filename(s, f)
	if s.Name != "" {
		name = strings.TrimSuffix(name, f.Extension()) + "-" + security.SanitizeFilename(s.Name) + f.Extension()
	}
	return filepath.Join(a.dir, s.StartTime.UTC().Format("2006"), name)
}

// Archive writes s in every configured format and returns the written paths.
func (a *Archiver) Archive(s *tracking.Session) ([]string, error) {
	var written []string
	for _, f := range a.formats {
		path := a.Path(s, f)
		if err := security.ValidatePathWithinDirectory(path, a.dir); err != nil {
			return written, err
		}

		var buf bytes.Buffer
		if err := Write(&buf, s, f); err != nil {
			return written, fmt.Errorf("failed to encode session %s as %s: %w", s.ID, f, err)
		}
		if err := a.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("failed to create archive directory: %w", err)
		}
		if err := a.fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// Run archives each session received on completed until ctx is done or
// completed is closed.
func (a *Archiver) Run(ctx context.Context, completed <-chan *tracking.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-completed:
			if !ok {
				return
			}
			if s == nil {
				continue
			}
			paths, err := a.Archive(s)
			if err != nil {
				logf("failed to archive session %s: %v", s.ID, err)
				continue
			}
			logf("archived session %s to %s", s.ID, strings.Join(paths, ", "))
		}
	}
}
