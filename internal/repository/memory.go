package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
)

// MemoryRawStore is the development/test RawStore backend. It keeps the
// same contract as the ClickHouse store: append-only, idempotent by
// (symbol, timestamp, source), ordered range reads. Each key holds its
// revision history so a superseded row stays visible next to its
// replacement.
type MemoryRawStore struct {
	mu   sync.RWMutex
	rows map[models.ObservationKey][]models.Observation
}

func NewMemoryRawStore() *MemoryRawStore {
	return &MemoryRawStore{rows: make(map[models.ObservationKey][]models.Observation)}
}

func (s *MemoryRawStore) Append(ctx context.Context, obs []models.Observation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appended := 0
	for _, o := range obs {
		key := o.Key()
		if hist := s.rows[key]; len(hist) > 0 && !hist[len(hist)-1].Superseded {
			continue // re-append of a live key is a no-op
		}
		s.rows[key] = append(s.rows[key], o)
		appended++
	}
	return appended, nil
}

func (s *MemoryRawStore) Read(ctx context.Context, symbol string, r models.TimeRange, source string) ([]models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Observation, 0, 64)
	for _, hist := range s.rows {
		for _, o := range hist {
			if o.Symbol != symbol || !r.Contains(o.Timestamp) {
				continue
			}
			if source != "" && o.Source != source {
				continue
			}
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

func (s *MemoryRawStore) First(ctx context.Context, symbol, source string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first time.Time
	for key := range s.rows {
		if key.Symbol != symbol || (source != "" && key.Source != source) {
			continue
		}
		ts := time.Unix(key.Unix, 0).UTC()
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
	}
	return first, nil
}

func (s *MemoryRawStore) Supersede(ctx context.Context, key models.ObservationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := s.rows[key]
	if len(hist) == 0 || hist[len(hist)-1].Superseded {
		return nil
	}
	hist[len(hist)-1].Superseded = true
	return nil
}

// Len reports the number of stored observations, revisions included.
func (s *MemoryRawStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, hist := range s.rows {
		n += len(hist)
	}
	return n
}

func (s *MemoryRawStore) Health(ctx context.Context) error { return nil }
func (s *MemoryRawStore) Close() error                     { return nil }

// MemoryCursorStore keeps watermarks and per-pair leases in process.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]models.Cursor
	leases  map[string]time.Time
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{
		cursors: make(map[string]models.Cursor),
		leases:  make(map[string]time.Time),
	}
}

func (s *MemoryCursorStore) Get(ctx context.Context, inst models.Instrument) (models.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[inst.PairKey()], nil
}

func (s *MemoryCursorStore) Advance(ctx context.Context, inst models.Instrument, cur models.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[inst.PairKey()] = cur
	return nil
}

func (s *MemoryCursorStore) Lease(ctx context.Context, inst models.Instrument, ttl time.Duration) (func(), error) {
	key := inst.PairKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, held := s.leases[key]; held && time.Now().Before(until) {
		return nil, models.ErrLeaseHeld
	}
	s.leases[key] = time.Now().Add(ttl)
	return func() {
		s.mu.Lock()
		delete(s.leases, key)
		s.mu.Unlock()
	}, nil
}

// MemoryProcessedStore materializes feature records in process.
type MemoryProcessedStore struct {
	mu   sync.RWMutex
	rows map[processedKey]models.FeatureRecord
}

type processedKey struct {
	symbol  string
	unix    int64
	version string
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{rows: make(map[processedKey]models.FeatureRecord)}
}

func (s *MemoryProcessedStore) Write(ctx context.Context, recs []models.FeatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.rows[processedKey{r.Symbol, r.Timestamp.Unix(), r.Version}] = r
	}
	return nil
}

func (s *MemoryProcessedStore) Read(ctx context.Context, symbol string, r models.TimeRange, version string) ([]models.FeatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeatureRecord, 0, 64)
	for _, rec := range s.rows {
		if rec.Symbol != symbol || rec.Version != version || !r.Contains(rec.Timestamp) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Len reports the number of stored feature records.
func (s *MemoryProcessedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryProcessedStore) Close() error { return nil }

// MemorySignalLog is the in-process signal audit log.
type MemorySignalLog struct {
	mu   sync.RWMutex
	rows map[signalKey]models.Signal
}

type signalKey struct {
	symbol string
	unix   int64
}

func NewMemorySignalLog() *MemorySignalLog {
	return &MemorySignalLog{rows: make(map[signalKey]models.Signal)}
}

func (s *MemorySignalLog) Append(ctx context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalKey{sig.Symbol, sig.Timestamp.Unix()}
	if _, exists := s.rows[key]; exists {
		return nil // signals are immutable; same key means same decision
	}
	s.rows[key] = sig
	return nil
}

func (s *MemorySignalLog) List(ctx context.Context, symbol string, r models.TimeRange, limit int) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, 0, 16)
	for _, sig := range s.rows {
		if sig.Symbol != symbol || !r.Contains(sig.Timestamp) {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemorySignalLog) Close() error { return nil }

var (
	_ drepo.RawStore       = (*MemoryRawStore)(nil)
	_ drepo.CursorStore    = (*MemoryCursorStore)(nil)
	_ drepo.ProcessedStore = (*MemoryProcessedStore)(nil)
	_ drepo.SignalLog      = (*MemorySignalLog)(nil)
)
