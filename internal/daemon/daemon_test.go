package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpress/internal/config"
	"git.home.luguber.info/inful/docpress/internal/model"
	"git.home.luguber.info/inful/docpress/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		UploadsDir:   t.TempDir(),
		LayoutsDir:   t.TempDir(),
		DatabasePath: ":memory:",
		Queue:        config.QueueConfig{Workers: 1, MaxSize: 5},
	}
}

func newTestDaemon(t *testing.T) (*Daemon, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	d, err := New(testConfig(t), st)
	require.NoError(t, err)
	return d, st
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	require.NoError(t, d.Start(t.Context()))
	assert.NotNil(t, d.Queue())
	assert.Zero(t, d.Queue().Length())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(ctx)
}

func TestSweepRemovesOnlyStaleUnknownDirs(t *testing.T) {
	d, st := newTestDaemon(t)

	ct := &model.ContentType{ID: uuid.New(), Name: "Offer", Prefix: "OFF"}
	require.NoError(t, st.CreateContentType(t.Context(), ct))
	inst := &model.Instance{
		ID:            uuid.New(),
		InstanceCode:  "OFF0001",
		Serialized:    map[string]string{},
		ContentTypeID: ct.ID,
	}
	require.NoError(t, st.CreateInstance(t.Context(), inst))

	contents := filepath.Join(d.cfg.UploadsDir, "contents")
	old := time.Now().Add(-48 * time.Hour)

	known := filepath.Join(contents, "OFF0001")
	stale := filepath.Join(contents, "OFF0099")
	fresh := filepath.Join(contents, "OFF0100")
	for _, dir := range []string{known, stale, fresh} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.Chtimes(known, old, old))
	require.NoError(t, os.Chtimes(stale, old, old))

	d.scheduler.sweepWorkDirs()

	assert.DirExists(t, known, "directories with a live instance are kept")
	assert.DirExists(t, fresh, "young directories are kept")
	assert.NoDirExists(t, stale)
}

func TestSweepToleratesMissingContentsDir(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.scheduler.sweepWorkDirs()
}
