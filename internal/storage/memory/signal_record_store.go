package memory

import (
	"context"
	"sort"
	"sync"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// SignalRecordStore is an in-memory implementation of storage.SignalRecordStore.
type SignalRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SignalRecord // keyed by record id
}

// NewSignalRecordStore creates a new in-memory signal record store.
func NewSignalRecordStore() *SignalRecordStore {
	return &SignalRecordStore{
		data: make(map[string]*domain.SignalRecord),
	}
}

// Insert appends a record. Returns ErrDuplicateKey if the id exists.
func (s *SignalRecordStore) Insert(_ context.Context, r *domain.SignalRecord) error {
	if !validRecord(r) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ID] = cloneRecord(r)
	return nil
}

// InsertBulk appends records atomically. Fails entire batch on any duplicate.
func (s *SignalRecordStore) InsertBulk(_ context.Context, records []*domain.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if !validRecord(r) {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.ID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		s.data[r.ID] = cloneRecord(r)
	}
	return nil
}

// GetByModeSymbol returns records for (mode, symbol) ordered by timestamp ASC, id ASC.
func (s *SignalRecordStore) GetByModeSymbol(_ context.Context, mode domain.Mode, symbol string) ([]*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for _, r := range s.data {
		if r.Mode == mode && r.Symbol == symbol {
			result = append(result, cloneRecord(r))
		}
	}
	sortRecords(result)
	return result, nil
}

// GetByMode returns all records for a mode ordered by symbol, timestamp, id.
func (s *SignalRecordStore) GetByMode(_ context.Context, mode domain.Mode) ([]*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for _, r := range s.data {
		if r.Mode == mode {
			result = append(result, cloneRecord(r))
		}
	}
	sortRecords(result)
	return result, nil
}

func validRecord(r *domain.SignalRecord) bool {
	return r != nil && r.ID != "" && r.Mode.IsValid() && r.Symbol != ""
}

func sortRecords(rs []*domain.SignalRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Symbol != rs[j].Symbol {
			return rs[i].Symbol < rs[j].Symbol
		}
		if !rs[i].Timestamp.Equal(rs[j].Timestamp) {
			return rs[i].Timestamp.Before(rs[j].Timestamp)
		}
		return rs[i].ID < rs[j].ID
	})
}

func cloneRecord(r *domain.SignalRecord) *domain.SignalRecord {
	c := *r
	c.Targets = append([]float64(nil), r.Targets...)
	if r.MLScore != nil {
		v := *r.MLScore
		c.MLScore = &v
	}
	return &c
}

var _ storage.SignalRecordStore = (*SignalRecordStore)(nil)
