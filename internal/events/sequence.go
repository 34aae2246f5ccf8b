package events

import (
	"context"
	"database/sql"
	"fmt"
)

// sequenceStore hands out monotonically increasing sequence numbers per
// partition key, backed by an upsert so concurrent publishers never collide.
type sequenceStore struct {
	db *sql.DB
}

// NewSequenceStore creates the per-partition sequence source for the publisher.
func NewSequenceStore(db *sql.DB) *sequenceStore {
	return &sequenceStore{db: db}
}

func (s *sequenceStore) Next(ctx context.Context, partitionKey string) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = NOW()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
