// internal/store/store.go

// Package store persists test results. The postgres backend is the
// production path; a JSON-lines file backend serves local runs.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// Repository is the persistence surface the engine depends on.
type Repository interface {
	SaveResults(ctx context.Context, results []*schemas.TestResult) error
	ResultsBySession(ctx context.Context, sessionID string) ([]*schemas.TestResult, error)
	Close(ctx context.Context) error
}

// DBPool abstracts pgxpool.Pool to allow mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the PostgreSQL implementation of Repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ Repository = (*Store)(nil)

// New creates a postgres store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveResults inserts all results from one run in a single transaction.
func (s *Store) SaveResults(ctx context.Context, results []*schemas.TestResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistResults(ctx, tx, results); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Results persisted.", zap.Int("count", len(results)))
	return nil
}

func (s *Store) persistResults(ctx context.Context, tx pgx.Tx, results []*schemas.TestResult) error {
	rows := make([][]interface{}, len(results))
	for i, r := range results {
		pageState, err := jsonColumn(r.PageState, "{}")
		if err != nil {
			return fmt.Errorf("failed to encode page state for result %s: %w", r.ID, err)
		}
		violations, err := jsonColumn(r.Violations, "[]")
		if err != nil {
			return fmt.Errorf("failed to encode violations for result %s: %w", r.ID, err)
		}
		related, err := jsonColumn(r.RelatedResultIDs, "[]")
		if err != nil {
			return fmt.Errorf("failed to encode related ids for result %s: %w", r.ID, err)
		}

		rows[i] = []interface{}{
			r.ID, r.PageID, r.URL, r.Title,
			pageState, r.StateSequence, r.SessionID,
			related, violations, r.Error,
			r.ObservedAt.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"test_results"},
		[]string{"id", "page_id", "url", "title", "page_state", "state_sequence", "session_id", "related_result_ids", "violations", "error", "observed_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy test results: %w", err)
	}
	if int(copyCount) != len(results) {
		return fmt.Errorf("mismatch in copied result count: expected %d, got %d", len(results), copyCount)
	}
	return nil
}

// jsonColumn encodes a value for a JSONB column. Nil values take the given
// empty form so the column never holds JSON null.
func jsonColumn(v interface{}, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

// ResultsBySession returns every result tagged with the session id, oldest
// first.
func (s *Store) ResultsBySession(ctx context.Context, sessionID string) ([]*schemas.TestResult, error) {
	query := `
        SELECT id, page_id, url, title, page_state, state_sequence, related_result_ids, violations, error, observed_at
        FROM test_results
        WHERE session_id = $1
        ORDER BY observed_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*schemas.TestResult
	for rows.Next() {
		r := &schemas.TestResult{SessionID: sessionID}
		var pageState, related, violations []byte

		err := rows.Scan(
			&r.ID, &r.PageID, &r.URL, &r.Title,
			&pageState, &r.StateSequence,
			&related, &violations, &r.Error,
			&r.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		if len(pageState) > 0 && string(pageState) != "{}" {
			if err := json.Unmarshal(pageState, &r.PageState); err != nil {
				return nil, fmt.Errorf("failed to decode page state for result %s: %w", r.ID, err)
			}
		}
		if err := json.Unmarshal(related, &r.RelatedResultIDs); err != nil {
			return nil, fmt.Errorf("failed to decode related ids for result %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(violations, &r.Violations); err != nil {
			return nil, fmt.Errorf("failed to decode violations for result %s: %w", r.ID, err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}

// Close releases the connection pool.
func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}
