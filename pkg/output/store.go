// Package output receives captured stills: it keeps a short-lived in-memory
// copy for previews and downloads each still into a local directory.
package output

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offlinefirst/framegrab/pkg/capture"
)

// DefaultRetention is how long a preview blob stays addressable.
const DefaultRetention = 60 * time.Second

// Blob is a retained encoded still.
type Blob struct {
	ID        string    `json:"id"`
	Sequence  int       `json:"sequence"`
	Filename  string    `json:"filename"`
	MIME      string    `json:"mime"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
	Data      []byte    `json:"-"`
}

type storeEntry struct {
	blob  Blob
	timer *time.Timer
}

// Store keeps blobs for a bounded retention window, then releases them.
type Store struct {
	mu        sync.Mutex
	retention time.Duration
	clock     func() time.Time
	entries   map[string]*storeEntry
	closed    bool
}

// NewStore constructs a store. A non-positive retention selects DefaultRetention.
func NewStore(retention time.Duration, clock func() time.Time) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clock == nil {
		clock = time.Now
	}
	return &Store{retention: retention, clock: clock, entries: make(map[string]*storeEntry)}
}

// Put retains the screenshot's bytes under a fresh key.
func (s *Store) Put(shot capture.Screenshot) Blob {
	blob := Blob{
		ID:        uuid.NewString(),
		Sequence:  shot.Sequence,
		Filename:  shot.Filename,
		MIME:      shot.Image.MIME,
		Width:     shot.Image.Width,
		Height:    shot.Image.Height,
		CreatedAt: s.clock(),
		Data:      shot.Image.Data,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return blob
	}
	id := blob.ID
	s.entries[id] = &storeEntry{
		blob:  blob,
		timer: time.AfterFunc(s.retention, func() { s.Release(id) }),
	}
	return blob
}

// Get returns a retained blob.
func (s *Store) Get(id string) (Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Blob{}, false
	}
	return entry.blob, true
}

// Release drops a blob early. It reports whether the blob was present.
func (s *Store) Release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.entries, id)
	return true
}

// Len counts retained blobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close releases every blob and rejects further retention.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, id)
	}
	s.closed = true
}
