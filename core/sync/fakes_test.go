package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"dapsync/model"
	"dapsync/transport"
)

// memStore is an in-memory SyncStateRepository for executor and engine
// tests.
type memStore struct {
	mu      gosync.Mutex
	records map[string]model.DeviceRecord
	puts    int
	failPut bool
}

func newMemStore(records ...model.DeviceRecord) *memStore {
	s := &memStore{records: make(map[string]model.DeviceRecord)}
	for _, r := range records {
		s.records[r.TrackID] = r
	}
	return s
}

func (s *memStore) Get(trackID string) (*model.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[trackID]; ok {
		out := r
		return &out, nil
	}
	return nil, nil
}

func (s *memStore) Put(record *model.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failPut {
		return fmt.Errorf("store write refused")
	}
	s.records[record.TrackID] = *record
	return nil
}

func (s *memStore) Delete(trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, trackID)
	return nil
}

func (s *memStore) ListAll() ([]model.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DeviceRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) record(trackID string) *model.DeviceRecord {
	r, _ := s.Get(trackID)
	return r
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeTransport records device operations and injects failures.
type fakeTransport struct {
	mu gosync.Mutex
	// pushFail maps device path to how many initial Push calls fail.
	pushFail   map[string]int
	pushErr    error
	removeErr  error
	connectErr error

	connects  int
	pushes    []string
	pushCalls map[string]int
	removes   []string
	files     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pushFail:  make(map[string]int),
		pushCalls: make(map[string]int),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	return t.connectErr
}

func (t *fakeTransport) Disconnect() error { return nil }

func (t *fakeTransport) Push(ctx context.Context, localPath, devicePath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushCalls[devicePath]++
	if n := t.pushFail[devicePath]; n > 0 {
		t.pushFail[devicePath] = n - 1
		if t.pushErr != nil {
			return t.pushErr
		}
		return fmt.Errorf("%w: injected push failure", transport.ErrTransport)
	}
	t.pushes = append(t.pushes, devicePath)
	return nil
}

func (t *fakeTransport) Remove(ctx context.Context, devicePath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removeErr != nil {
		return t.removeErr
	}
	t.removes = append(t.removes, devicePath)
	return nil
}

func (t *fakeTransport) Exists(ctx context.Context, devicePath string) (bool, error) {
	return false, nil
}

func (t *fakeTransport) MkdirAll(ctx context.Context, devicePath string) error { return nil }

func (t *fakeTransport) ListTracks(ctx context.Context, root string) ([]string, error) {
	return t.files, nil
}

func (t *fakeTransport) DeviceInfo(ctx context.Context) (map[string]string, error) {
	return map[string]string{"ro.product.model": "TestDAP"}, nil
}

func (t *fakeTransport) operationCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.connects + len(t.removes)
	for _, n := range t.pushCalls {
		total += n
	}
	return total
}

// fakeStager returns the source path unchanged, or an injected error for
// specific sources.
type fakeStager struct {
	mu      gosync.Mutex
	failFor map[string]error
	staged  []string
}

func newFakeStager() *fakeStager {
	return &fakeStager{failFor: make(map[string]error)}
}

func (s *fakeStager) Stage(srcPath string) (string, int64, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[srcPath]; ok {
		return "", 0, nil, err
	}
	s.staged = append(s.staged, srcPath)
	return srcPath, 1024, func() {}, nil
}

// fakeLoader hands the engine a fixed library snapshot.
type fakeLoader struct {
	tracks    []model.Track
	playlists []model.Playlist
	err       error
}

func (l *fakeLoader) Load() ([]model.Track, []model.Playlist, error) {
	if l.err != nil {
		return nil, nil, l.err
	}
	return l.tracks, l.playlists, nil
}

func testTrack(id string, mutate ...func(*model.Track)) model.Track {
	t := model.Track{
		ID:        id,
		FilePath:  "/music/" + id + ".mp3",
		Title:     "Title " + id,
		Artist:    "Artist " + id,
		Album:     "Album " + id,
		DateAdded: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, f := range mutate {
		f(&t)
	}
	return t
}
