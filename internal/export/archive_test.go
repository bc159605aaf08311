package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/banshee-data/trail.report/internal/fsutil"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiver_Path(t *testing.T) {
	a := NewArchiver(fsutil.NewMemoryFileSystem(), "/srv/trails", nil)
	s := completedSession()

	assert.Equal(t, "/srv/trails/2026/trail-20260412-0900-1a2b3c4d-Cami_de_Cavalls.gpx", a.Path(s, FormatGPX))

	s.Name = "../../etc/passwd"
	assert.Equal(t, "/srv/trails/2026/trail-20260412-0900-1a2b3c4d-etc_passwd.kml", a.Path(s, FormatKML))

	s.Name = ""
	assert.Equal(t, "/srv/trails/2026/trail-20260412-0900-1a2b3c4d.geojson", a.Path(s, FormatGeoJSON))
}

func TestArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	fsys := fsutil.NewMemoryFileSystem()
	a := NewArchiver(fsys, dir, []Format{FormatGPX, FormatGeoJSON})

	paths, err := a.Archive(completedSession())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.ElementsMatch(t, paths, fsys.Files())
	assert.Equal(t, filepath.Join(dir, "2026"), filepath.Dir(paths[0]))

	doc, err := fsys.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<gpx")
}

func TestArchiver_ArchiveActiveSession(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	a := NewArchiver(fsys, t.TempDir(), nil)

	s := completedSession()
	s.IsCompleted = false
	_, err := a.Archive(s)
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Empty(t, fsys.Files())
}

func TestArchiver_Run(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	a := NewArchiver(fsys, t.TempDir(), []Format{FormatKML})

	first := completedSession()
	second := completedSession()
	second.ID = "9f8e7d6c-0000-4000-8000-000000000002"
	completed := make(chan *tracking.Session, 3)
	completed <- first
	completed <- nil
	completed <- second
	close(completed)

	a.Run(context.Background(), completed)
	assert.ElementsMatch(t, []string{a.Path(first, FormatKML), a.Path(second, FormatKML)}, fsys.Files())
}

func TestArchiver_RunStopsOnCancel(t *testing.T) {
	a := NewArchiver(fsutil.NewMemoryFileSystem(), t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx, make(chan *tracking.Session))
		close(done)
	}()
	<-done
}
