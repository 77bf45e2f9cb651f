package stats

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mt5-ensemble-bot/internal/logger"
)

const (
	weightMin = 0.2
	weightMax = 3.0
)

type ModelStat struct {
	Calls     int     `json:"calls"`
	Success   int     `json:"success"`
	Fail      int     `json:"fail"`
	Weight    float64 `json:"weight"`
	CreatedAt int64   `json:"created_at"`
	LastSeen  int64   `json:"last_seen"`
	UpdatedAt int64   `json:"updated_at"`
}

// Store keeps per-model success/fail counters and a derived weight,
// persisted as a single JSON document rewritten atomically. Persistence
// errors are logged and swallowed; they never reach callers.
type Store struct {
	mu            sync.Mutex
	path          string
	flushInterval time.Duration
	lastFlush     time.Time
	dirty         bool
	stats         map[string]*ModelStat

	stopOnce sync.Once
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(path string, flushInterval time.Duration) *Store {
	s := &Store{
		path:          path,
		flushInterval: flushInterval,
		stats:         map[string]*ModelStat{},
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	s.load()
	return s
}

func (s *Store) load() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	m := map[string]*ModelStat{}
	if err := json.Unmarshal(b, &m); err != nil {
		logger.Warn(context.Background(), "Ignoring unreadable model stats file", "path", s.path, "error", err)
		return
	}
	s.stats = m
}

// Ensure creates a default record for the model if missing.
func (s *Store) Ensure(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(modelID)
}

func (s *Store) ensureLocked(modelID string) *ModelStat {
	st, ok := s.stats[modelID]
	if !ok {
		now := time.Now().Unix()
		st = &ModelStat{Weight: 1.0, CreatedAt: now, LastSeen: now, UpdatedAt: now}
		s.stats[modelID] = st
		s.dirty = true
	}
	return st
}

// Update increments counters and recomputes the weight. The win rate is
// Laplace smoothed so a fresh model does not collapse to the floor.
func (s *Store) Update(modelID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureLocked(modelID)
	now := time.Now().Unix()
	st.Calls++
	if success {
		st.Success++
	} else {
		st.Fail++
	}
	winrate := (float64(st.Success) + 0.5) / (float64(st.Success) + float64(st.Fail) + 1.0)
	st.Weight = clamp(0.5+winrate*2.5, weightMin, weightMax)
	st.LastSeen = now
	st.UpdatedAt = now
	s.dirty = true
}

// Weight returns 1.0 for unknown models.
func (s *Store) Weight(modelID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[modelID]; ok {
		return st.Weight
	}
	return 1.0
}

// Snapshot returns a deep copy of the current stats map.
func (s *Store) Snapshot() map[string]ModelStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ModelStat, len(s.stats))
	for k, v := range s.stats {
		out[k] = *v
	}
	return out
}

// Flush writes the stats document atomically (temp file then rename).
// Unless forced, writes are throttled to at most one per flush interval.
func (s *Store) Flush(force bool) {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	if !force && time.Since(s.lastFlush) < s.flushInterval {
		s.mu.Unlock()
		return
	}
	b, err := json.MarshalIndent(s.stats, "", "  ")
	s.lastFlush = time.Now()
	s.dirty = false
	s.mu.Unlock()

	if err != nil {
		logger.Warn(context.Background(), "Failed to marshal model stats", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		logger.Warn(context.Background(), "Failed to write model stats temp file", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logger.Warn(context.Background(), "Failed to replace model stats file", "path", s.path, "error", err)
	}
}

// StartFlusher runs the periodic background flush until Stop is called.
func (s *Store) StartFlusher() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go func() {
		defer close(s.doneCh)
		t := time.NewTicker(s.flushInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.Flush(false)
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the flusher and forces a final write.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.doneCh
		}
		s.Flush(true)
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
