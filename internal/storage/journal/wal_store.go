// Package journal keeps an append-only audit log of successful upserts.
// It is never read back as a balance source.
package journal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/coinbook/internal/domain"
)

const (
	defaultJournalDir   = "./wal/journal"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	entryKeyPrefix      = "upsert_"
)

type requestIDKey struct{}

// ContextWithRequestID tags ctx so that recorded entries carry the request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Entry is one journaled upsert.
type Entry struct {
	Time      time.Time        `json:"time"`
	Key       domain.RecordKey `json:"key"`
	RecordID  string           `json:"record_id"`
	URL       string           `json:"url,omitempty"`
	Created   bool             `json:"created"`
	RequestID string           `json:"request_id,omitempty"`
}

// Record pairs an entry with its WAL index.
type Record struct {
	Index uint64 `json:"index"`
	Entry Entry  `json:"entry"`
}

// WALStore persists journal entries in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
	now func() time.Time
}

// NewWALStore opens the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	return &WALStore{wal: wal, now: time.Now}, nil
}

// Record appends an upsert outcome. It satisfies reconciler.Recorder.
func (s *WALStore) Record(ctx context.Context, result domain.UpsertResult) error {
	return s.Append(Entry{
		Time:      s.now().UTC(),
		Key:       result.Key,
		RecordID:  result.Ref.ID,
		URL:       result.Ref.URL,
		Created:   result.Created,
		RequestID: RequestIDFrom(ctx),
	})
}

// Append writes entry at the next index.
func (s *WALStore) Append(entry Entry) error {
	if s == nil || s.wal == nil {
		return errors.New("journal is not initialized")
	}
	if entry.RecordID == "" {
		return fmt.Errorf("journal entry record id is required")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal journal entry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, entryKeyPrefix+entry.Key.String(), payload)
}

// EntriesAfter returns every entry written after index.
func (s *WALStore) EntriesAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, ok := s.wal.Get(idx)
		if !ok || !strings.HasPrefix(key, entryKeyPrefix) {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, errors.Wrapf(err, "decode journal entry %d", idx)
		}
		records = append(records, Record{Index: idx, Entry: entry})
	}

	return records, nil
}

// CurrentIndex returns the latest index written.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
