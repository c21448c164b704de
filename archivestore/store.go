// Package archivestore is the durable mirror of the conversation: every
// committed message lands here per bucket, in SQL, for history that
// survives the key-value snapshot. It is write-mostly; the in-memory
// store stays authoritative for reads.
package archivestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contenox/coffeehouse/libdbexec"
)

type store struct {
	Exec libdbexec.Exec
}

// New creates a new archive store instance.
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

// CreateBucketIndex registers a bucket. Registering twice is a no-op.
func (s *store) CreateBucketIndex(ctx context.Context, bucket string) error {
	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO bucket_indices(bucket, created_at)
		VALUES ($1, $2)
		ON CONFLICT (bucket) DO NOTHING`,
		bucket,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create bucket index: %w", err)
	}
	return nil
}

// DeleteBucketIndex deletes a bucket registration.
func (s *store) DeleteBucketIndex(ctx context.Context, bucket string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM bucket_indices
		WHERE bucket = $1`,
		bucket,
	)
	if err != nil {
		return fmt.Errorf("failed to delete bucket index: %w", err)
	}
	return checkRowsAffected(result)
}

// ListBuckets lists all registered buckets.
func (s *store) ListBuckets(ctx context.Context) ([]string, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT bucket
		FROM bucket_indices
		ORDER BY bucket ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket indices: %w", err)
	}
	defer rows.Close()

	var buckets []string
	for rows.Next() {
		var bucket string
		if err := rows.Scan(&bucket); err != nil {
			return nil, fmt.Errorf("failed to scan bucket indices: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return buckets, nil
}

// AppendMessages appends multiple messages in a single batch insert.
func (s *store) AppendMessages(ctx context.Context, messages ...*ArchivedMessage) error {
	if len(messages) == 0 {
		return nil
	}

	now := time.Now().UTC()
	valueStrings := make([]string, 0, len(messages))
	valueArgs := make([]any, 0, len(messages)*4)

	for i, msg := range messages {
		if msg.AddedAt.IsZero() {
			msg.AddedAt = now
		}
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
		valueArgs = append(valueArgs, msg.ID, msg.Bucket, string(msg.Payload), msg.AddedAt)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO archived_messages (id, bucket, payload, added_at)
		VALUES %s`,
		strings.Join(valueStrings, ","),
	)

	_, err := s.Exec.ExecContext(ctx, stmt, valueArgs...)
	if err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	return nil
}

// DeleteMessages deletes all messages for a bucket.
func (s *store) DeleteMessages(ctx context.Context, bucket string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM archived_messages
		WHERE bucket = $1`,
		bucket,
	)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return checkRowsAffected(result)
}

// ListMessages lists all messages for a bucket in chronological order.
func (s *store) ListMessages(ctx context.Context, bucket string) ([]*ArchivedMessage, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT id, bucket, payload, added_at
		FROM archived_messages
		WHERE bucket = $1
		ORDER BY added_at ASC`,
		bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*ArchivedMessage
	for rows.Next() {
		var msg ArchivedMessage
		var payload string
		if err := rows.Scan(&msg.ID, &msg.Bucket, &payload, &msg.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan messages: %w", err)
		}
		msg.Payload = []byte(payload)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return msgs, nil
}

// LastMessage gets the most recent message for a bucket.
func (s *store) LastMessage(ctx context.Context, bucket string) (*ArchivedMessage, error) {
	row := s.Exec.QueryRowContext(ctx, `
		SELECT id, bucket, payload, added_at
		FROM archived_messages
		WHERE bucket = $1
		ORDER BY added_at DESC
		LIMIT 1`,
		bucket,
	)

	var msg ArchivedMessage
	var payload string
	if err := row.Scan(&msg.ID, &msg.Bucket, &payload, &msg.AddedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}
	msg.Payload = []byte(payload)
	return &msg, nil
}

// CountMessages counts the messages archived for a bucket.
func (s *store) CountMessages(ctx context.Context, bucket string) (int, error) {
	row := s.Exec.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM archived_messages
		WHERE bucket = $1`,
		bucket,
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
