package clickhouse

import (
	"context"
	"fmt"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// SignalRecordStore implements storage.SignalRecordStore using ClickHouse.
type SignalRecordStore struct {
	conn *Conn
}

// NewSignalRecordStore creates a new SignalRecordStore.
func NewSignalRecordStore(conn *Conn) *SignalRecordStore {
	return &SignalRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SignalRecordStore = (*SignalRecordStore)(nil)

const signalRecordColumns = `
	id, mode, symbol, direction, entry, targets, stop, outcome,
	impact_score, confidence, ml_score, executed, strategy_id, timestamp_ms
`

// Insert appends a record. Returns ErrDuplicateKey if the id exists.
func (s *SignalRecordStore) Insert(ctx context.Context, r *domain.SignalRecord) error {
	return s.InsertBulk(ctx, []*domain.SignalRecord{r})
}

// InsertBulk appends records. Fails entire batch on any duplicate id.
func (s *SignalRecordStore) InsertBulk(ctx context.Context, records []*domain.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.ID == "" || !r.Mode.IsValid() || r.Symbol == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.ID] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, r := range records {
		exists, err := s.exists(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO signal_records (`+signalRecordColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		var executed uint8
		if r.Executed {
			executed = 1
		}
		targets := r.Targets
		if targets == nil {
			targets = []float64{}
		}
		err = batch.Append(
			r.ID, string(r.Mode), r.Symbol, string(r.Direction), r.Entry, targets, r.Stop, string(r.Outcome),
			r.ImpactScore, r.Confidence, r.MLScore, executed, r.StrategyID, r.Timestamp.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByModeSymbol returns records for (mode, symbol) ordered by timestamp ASC, id ASC.
func (s *SignalRecordStore) GetByModeSymbol(ctx context.Context, mode domain.Mode, symbol string) ([]*domain.SignalRecord, error) {
	query := `
		SELECT ` + signalRecordColumns + `
		FROM signal_records
		WHERE mode = ? AND symbol = ?
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, string(mode), symbol)
	if err != nil {
		return nil, fmt.Errorf("query by mode and symbol: %w", err)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

// GetByMode returns all records for a mode ordered by symbol, timestamp, id.
func (s *SignalRecordStore) GetByMode(ctx context.Context, mode domain.Mode) ([]*domain.SignalRecord, error) {
	query := `
		SELECT ` + signalRecordColumns + `
		FROM signal_records
		WHERE mode = ?
		ORDER BY symbol ASC, timestamp_ms ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query by mode: %w", err)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

func (s *SignalRecordStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM signal_records WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSignalRecords(rows chRows) ([]*domain.SignalRecord, error) {
	var records []*domain.SignalRecord

	for rows.Next() {
		var (
			r                        domain.SignalRecord
			mode, direction, outcome string
			executed                 uint8
			timestampMs              int64
		)
		err := rows.Scan(
			&r.ID, &mode, &r.Symbol, &direction, &r.Entry, &r.Targets, &r.Stop, &outcome,
			&r.ImpactScore, &r.Confidence, &r.MLScore, &executed, &r.StrategyID, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal record: %w", err)
		}
		r.Mode = domain.Mode(mode)
		r.Direction = domain.Direction(direction)
		r.Outcome = domain.Outcome(outcome)
		r.Executed = executed == 1
		r.Timestamp = time.UnixMilli(timestampMs).UTC()
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal records: %w", err)
	}
	return records, nil
}
