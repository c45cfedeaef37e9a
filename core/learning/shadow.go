package learning

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// ShadowKey is the namespace under which guest progress is persisted.
const ShadowKey = "hechun_guest_progress"

// ShadowBackend persists the encoded guest progress under a key (a browser cookie, memory...).
type ShadowBackend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Clear(key string) error
}

// ProgressRecorder is the authenticated write path guest entries are replayed through.
type ProgressRecorder interface {
	RecordProgress(ctx context.Context, learner Learner, lessonID int64, stars int) (RecordResult, error)
}

// ShadowStore mirrors the progress of a guest: lesson ID -> best stars, JSON encoded as {"<lessonID>": stars}.
type ShadowStore struct {
	mu      sync.Mutex
	backend ShadowBackend
	key     string
}

func NewShadowStore(backend ShadowBackend, key ...string) *ShadowStore {
	k := ShadowKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	return &ShadowStore{backend: backend, key: k}
}

// MigrationResult lists the replayed entries. Dropped entries could never be replayed (unknown
// lesson, invalid stars) and were removed; Failed entries stay in the store.
type MigrationResult struct {
	Migrated []int64         `json:"migrated"`
	Dropped  []int64         `json:"dropped"`
	Failed   map[int64]error `json:"-"`
}

// Entries returns the stored mapping. Missing or undecodable data reads as empty.
func (s *ShadowStore) Entries() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *ShadowStore) load() map[int64]int {
	entries := make(map[int64]int)
	data, err := s.backend.Load(s.key)
	if err != nil || len(data) == 0 {
		return entries
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return entries
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		stars, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				continue
			}
			stars = int64(f)
		}
		if stars < 0 {
			stars = 0
		} else if stars > MaxStars {
			stars = MaxStars
		}
		entries[id] = int(stars)
	}
	return entries
}

func (s *ShadowStore) save(entries map[int64]int) error {
	if len(entries) == 0 {
		return s.backend.Clear(s.key)
	}
	raw := make(map[string]int, len(entries))
	for id, stars := range entries {
		raw[strconv.FormatInt(id, 10)] = stars
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "encoding guest progress")
	}
	return s.backend.Save(s.key, data)
}

// Record stores stars for the lesson only when it beats the stored value or none exists.
// It reports whether the mapping changed.
func (s *ShadowStore) Record(lessonID int64, stars int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	if current, ok := entries[lessonID]; ok && stars <= current {
		return false, nil
	}
	entries[lessonID] = stars
	if err := s.save(entries); err != nil {
		return false, errors.Wrap(err, "saving guest progress")
	}
	return true, nil
}

// Totals computes the guest stats the same way the server aggregates Progress rows.
func (s *ShadowStore) Totals() Stats {
	var stats Stats
	for _, stars := range s.Entries() {
		stats.TotalStars += stars
		if stars > 0 {
			stats.LessonsCompleted++
		}
	}
	return stats
}

// Migrate replays every entry, in lesson ID order, through the authenticated recorder for userID.
// Confirmed and permanently rejected entries are removed. Transient failures stay in the store for
// a later attempt.
func (s *ShadowStore) Migrate(ctx context.Context, userID string, recorder ProgressRecorder) (MigrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := MigrationResult{Migrated: []int64{}, Dropped: []int64{}, Failed: make(map[int64]error)}
	if userID == "" {
		return res, errors.New("migrating guest progress: no user")
	}

	entries := s.load()
	ids := make([]int64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	remaining := make(map[int64]int)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed[id] = err
			remaining[id] = entries[id]
			continue
		}
		if _, err := recorder.RecordProgress(ctx, Learner{UserID: userID}, id, entries[id]); err != nil {
			if isPermanent(err) {
				res.Dropped = append(res.Dropped, id)
				continue
			}
			res.Failed[id] = err
			remaining[id] = entries[id]
			continue
		}
		res.Migrated = append(res.Migrated, id)
	}

	if err := s.save(remaining); err != nil {
		return res, errors.Wrap(err, "saving unmigrated guest progress")
	}
	return res, nil
}

// MemoryBackend is an in-process ShadowBackend.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Load(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data[key]...), nil
}

func (b *MemoryBackend) Save(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Clear(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}
