package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opslink-dev/fieldsync/internal/models"
)

// memCollections is an in-memory CollectionStore for tests.
type memCollections struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
	loadErr error
	saves   int
}

func newMemCollections() *memCollections {
	return &memCollections{data: make(map[string][]byte)}
}

func (m *memCollections) Load(namespace string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[namespace], nil
}

func (m *memCollections) Save(namespace string, entries []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data[namespace] = append([]byte(nil), entries...)
	return nil
}

func (m *memCollections) Delete(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace)
	return nil
}

// memRetryStore is an in-memory RetryStore.
type memRetryStore struct {
	mu  sync.Mutex
	ops map[string]models.RetryOp
}

func newMemRetryStore() *memRetryStore {
	return &memRetryStore{ops: make(map[string]models.RetryOp)}
}

func (m *memRetryStore) LoadAll() ([]models.RetryOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RetryOp, 0, len(m.ops))
	for _, op := range m.ops {
		out = append(out, op)
	}
	return out, nil
}

func (m *memRetryStore) Save(op *models.RetryOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op.ID] = *op
	return nil
}

func (m *memRetryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ops, id)
	return nil
}

// memUploadStore is an in-memory UploadStore.
type memUploadStore struct {
	mu      sync.Mutex
	uploads map[string]models.Upload
}

func newMemUploadStore() *memUploadStore {
	return &memUploadStore{uploads: make(map[string]models.Upload)}
}

func (m *memUploadStore) LoadAll() ([]models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Upload, 0, len(m.uploads))
	for _, u := range m.uploads {
		out = append(out, u)
	}
	return out, nil
}

func (m *memUploadStore) Save(u *models.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[u.PhotoID] = *u
	return nil
}

func (m *memUploadStore) Delete(photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, photoID)
	return nil
}

// fakeRemote scripts backend behavior per test.
type fakeRemote struct {
	pingErr    error
	pushErr    error
	uploadErr  error
	fetched    map[string]RecordSnapshot // key: table/serverID
	changed    map[string][]RecordSnapshot
	pushed     []map[string]interface{}
	pushedIDs  []*int64 // server id given with each push, nil = create
	uploaded   []string
	nextServer int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		fetched:    make(map[string]RecordSnapshot),
		changed:    make(map[string][]RecordSnapshot),
		nextServer: 100,
	}
}

func (r *fakeRemote) Ping(ctx context.Context) error { return r.pingErr }

func (r *fakeRemote) FetchRecord(ctx context.Context, table string, serverID int64) (RecordSnapshot, error) {
	snap, ok := r.fetched[fmt.Sprintf("%s/%d", table, serverID)]
	if !ok {
		return RecordSnapshot{}, errors.New("record not found")
	}
	return snap, nil
}

func (r *fakeRemote) FetchChangedSince(ctx context.Context, table string, sinceMs int64) ([]RecordSnapshot, error) {
	return r.changed[table], nil
}

func (r *fakeRemote) PushRecord(ctx context.Context, table string, serverID *int64, fields map[string]interface{}) (int64, error) {
	if r.pushErr != nil {
		return 0, r.pushErr
	}
	r.pushed = append(r.pushed, fields)
	r.pushedIDs = append(r.pushedIDs, serverID)
	if serverID != nil {
		return *serverID, nil
	}
	r.nextServer++
	return r.nextServer, nil
}

func (r *fakeRemote) UploadPhoto(ctx context.Context, upload models.Upload, progress func(bytesSent int64)) error {
	if progress != nil {
		progress(upload.SizeBytes / 2)
	}
	if r.uploadErr != nil {
		return r.uploadErr
	}
	if progress != nil {
		progress(upload.SizeBytes)
	}
	r.uploaded = append(r.uploaded, upload.PhotoID)
	return nil
}

// fakeLocal scripts the device-local database.
type fakeLocal struct {
	pending   map[string][]RecordSnapshot
	baselines map[string]map[string]interface{} // key: table/recordID
	merged    []string
	synced    []string
	applied   []string
	conflicts []string
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		pending:   make(map[string][]RecordSnapshot),
		baselines: make(map[string]map[string]interface{}),
	}
}

func (l *fakeLocal) PendingSnapshots(table string) ([]RecordSnapshot, error) {
	return l.pending[table], nil
}

func (l *fakeLocal) Baseline(table, recordID string) (map[string]interface{}, error) {
	return l.baselines[table+"/"+recordID], nil
}

func (l *fakeLocal) ApplyMerged(table, recordID string, serverID int64, merged map[string]interface{}, serverModifiedAtMs int64) error {
	l.merged = append(l.merged, table+"/"+recordID)
	return nil
}

func (l *fakeLocal) ApplyRemote(table string, snap RecordSnapshot) error {
	l.applied = append(l.applied, table+"/"+snap.RecordID)
	return nil
}

func (l *fakeLocal) MarkSynced(table, recordID string, serverID int64, serverModifiedAtMs int64) error {
	l.synced = append(l.synced, table+"/"+recordID)
	return nil
}

func (l *fakeLocal) MarkConflict(table, recordID string) error {
	l.conflicts = append(l.conflicts, table+"/"+recordID)
	return nil
}

// memStateStore is an in-memory StateStore.
type memStateStore struct {
	states map[string]*models.SyncState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]*models.SyncState)}
}

func (s *memStateStore) Get(table string) (*models.SyncState, error) {
	return s.states[table], nil
}

func (s *memStateStore) Upsert(state *models.SyncState) error {
	s.states[state.RecordTable] = state
	return nil
}

func (s *memStateStore) LastFullSync() (*time.Time, error) {
	state, ok := s.states[models.FullSyncKey]
	if !ok {
		return nil, nil
	}
	return state.LastFullSyncAt, nil
}

// recordingEvents captures published events.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEvents) Publish(event string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEvents) has(event string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, got := range e.events {
		if got == event {
			return true
		}
	}
	return false
}

// fixedClock returns a settable nowFunc for deterministic timestamps.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(ms int64) *fixedClock {
	return &fixedClock{now: time.UnixMilli(ms)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
