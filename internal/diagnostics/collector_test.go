package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/sync"
)

type memCollections struct {
	data map[string][]byte
}

func (m *memCollections) Load(namespace string) ([]byte, error) { return m.data[namespace], nil }
func (m *memCollections) Save(ns string, entries []byte) error  { m.data[ns] = entries; return nil }
func (m *memCollections) Delete(namespace string) error         { delete(m.data, namespace); return nil }

type memRetryStore struct{ ops []models.RetryOp }

func (m *memRetryStore) LoadAll() ([]models.RetryOp, error) { return m.ops, nil }
func (m *memRetryStore) Save(op *models.RetryOp) error      { return nil }
func (m *memRetryStore) Delete(id string) error             { return nil }

type memUploadStore struct{ uploads []models.Upload }

func (m *memUploadStore) LoadAll() ([]models.Upload, error) { return m.uploads, nil }
func (m *memUploadStore) Save(u *models.Upload) error       { return nil }
func (m *memUploadStore) Delete(photoID string) error       { return nil }

type memStates struct{ lastFull *time.Time }

func (m *memStates) Get(table string) (*models.SyncState, error) { return nil, nil }
func (m *memStates) Upsert(state *models.SyncState) error        { return nil }
func (m *memStates) LastFullSync() (*time.Time, error)           { return m.lastFull, nil }

type fixedDevice struct{}

func (fixedDevice) DeviceInfo() DeviceInfo {
	return DeviceInfo{InstanceID: "dev-1", AppVersion: "1.2.3", Platform: "linux/amd64", Hostname: "tablet-07"}
}

type fixedStorage struct{ sizes map[string]int64 }

func (s fixedStorage) DirSizeBytes(path string) int64 { return s.sizes[path] }

type fixedNetwork struct{ online bool }

func (n fixedNetwork) Status() Connectivity {
	return Connectivity{Type: "wifi", Online: n.online, Reachable: n.online, CheckedAt: time.Now()}
}

func (n fixedNetwork) Subscribe() <-chan Connectivity {
	ch := make(chan Connectivity)
	close(ch)
	return ch
}

func newTestCollector(t *testing.T, lastFull *time.Time) (*Collector, *sync.AuditLog, *sync.ErrorLog) {
	t.Helper()

	collections := &memCollections{data: make(map[string][]byte)}
	audit := sync.NewAuditLog(collections, 0)
	errlog := sync.NewErrorLog(collections, 0)

	retries, err := sync.NewRetryQueue(&memRetryStore{}, sync.RetryQueueConfig{})
	require.NoError(t, err)
	uploads, err := sync.NewUploadTracker(&memUploadStore{}, sync.UploadTrackerConfig{})
	require.NoError(t, err)

	c := NewCollector(
		CollectorConfig{CacheDir: "/cache", PersistentDir: "/data"},
		CollectorDeps{
			Device:  fixedDevice{},
			Storage: fixedStorage{sizes: map[string]int64{"/cache": 1536, "/data": 1024 * 1024 * 1024}},
			Network: fixedNetwork{online: true},
			Audit:   audit,
			ErrLog:  errlog,
			Retries: retries,
			Uploads: uploads,
			States:  &memStates{lastFull: lastFull},
		},
	)
	return c, audit, errlog
}

func TestCollectMergesAllSections(t *testing.T) {
	lastFull := time.Now().Add(-30 * time.Minute)
	c, audit, errlog := newTestCollector(t, &lastFull)

	audit.Append(sync.ConflictLogEntry{TableName: "work_orders", RecordID: "wo-1", AutoResolved: true})
	audit.Append(sync.ConflictLogEntry{
		TableName: "work_orders", RecordID: "wo-2",
		AutoResolved: false, Escalations: []string{sync.EscalationCompletionConflict},
	})
	errlog.Record(sync.CategoryTransient, "connection timeout", "work_orders", "wo-1")

	snap := c.Collect()

	assert.Equal(t, "dev-1", snap.Device.InstanceID)
	assert.True(t, snap.Connectivity.Online)
	assert.Equal(t, "1.5 KB", snap.Storage.CacheDisplay)
	assert.Equal(t, "1 GB", snap.Storage.PersistentDisplay)
	assert.Equal(t, "30m ago", snap.LastFullSyncDisplay)
	assert.Equal(t, 2, snap.Conflicts.Total)
	assert.Equal(t, 1, snap.EscalatedConflicts)
	require.Len(t, snap.RecentErrors, 1)
	assert.Equal(t, "connection timeout", snap.RecentErrors[0].Message)
}

func TestCollectNeverSynced(t *testing.T) {
	c, _, _ := newTestCollector(t, nil)

	snap := c.Collect()
	assert.Nil(t, snap.LastFullSync)
	assert.Equal(t, "Never", snap.LastFullSyncDisplay)
	assert.Equal(t, 0, snap.Conflicts.Total)
	assert.Empty(t, snap.RecentErrors)
}

func TestDiskInspectorSumsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.bin"), make([]byte, 50), 0o644))

	var d DiskInspector
	assert.Equal(t, int64(150), d.DirSizeBytes(dir))
}

func TestDiskInspectorUnreadablePathIsZero(t *testing.T) {
	var d DiskInspector
	assert.Equal(t, int64(0), d.DirSizeBytes(""))
	assert.Equal(t, int64(0), d.DirSizeBytes(filepath.Join(t.TempDir(), "missing")))
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestBackendProbeOffline(t *testing.T) {
	p := &BackendProbe{Remote: failingPinger{}}
	status := p.Status()
	assert.False(t, status.Online)
	assert.False(t, status.Reachable)
	assert.Nil(t, status.CellGeneration)
	assert.Contains(t, status.Detail, "connection refused")
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

func TestBackendProbeNotifiesOnFirstPoll(t *testing.T) {
	p := &BackendProbe{Remote: okPinger{}, Interval: 10 * time.Millisecond}
	defer p.Close()

	ch := p.Subscribe()
	select {
	case status := <-ch:
		assert.True(t, status.Reachable)
	case <-time.After(2 * time.Second):
		t.Fatal("no connectivity notification received")
	}
}
