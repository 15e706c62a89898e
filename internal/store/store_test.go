// internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

var resultColumns = []string{"id", "page_id", "url", "title", "page_state", "state_sequence", "session_id", "related_result_ids", "violations", "error", "observed_at"}

func sampleResults(n int) []*schemas.TestResult {
	out := make([]*schemas.TestResult, n)
	for i := range out {
		out[i] = &schemas.TestResult{
			ID:            uuid.New().String(),
			PageID:        "page-1",
			URL:           "https://example.com/",
			Title:         "Example",
			SessionID:     "session-1",
			StateSequence: i,
			PageState: &schemas.PageTestState{
				StateID: "initial",
			},
			ObservedAt: time.Now(),
		}
	}
	return out
}

func TestNewStore(t *testing.T) {
	t.Run("PingFailurePropagates", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSaveResults(t *testing.T) {
	newStore := func(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
		t.Helper()
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		t.Cleanup(mockPool.Close)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)
		return s, mockPool
	}

	t.Run("PersistsAllResultsInOneTransaction", func(t *testing.T) {
		s, mockPool := newStore(t)
		results := sampleResults(3)

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).
			WillReturnResult(int64(len(results)))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveResults(context.Background(), results))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("CopyFailureRollsBack", func(t *testing.T) {
		s, mockPool := newStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).
			WillReturnError(errors.New("copy failed"))
		mockPool.ExpectRollback()

		err := s.SaveResults(context.Background(), sampleResults(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "copy failed")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("CountMismatchIsAnError", func(t *testing.T) {
		s, mockPool := newStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).
			WillReturnResult(int64(1))
		mockPool.ExpectRollback()

		err := s.SaveResults(context.Background(), sampleResults(2))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
	})

	t.Run("EmptySliceIsANoop", func(t *testing.T) {
		s, mockPool := newStore(t)
		require.NoError(t, s.SaveResults(context.Background(), nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestJSONColumn(t *testing.T) {
	b, err := jsonColumn(nil, "{}")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	var ids []string
	b, err = jsonColumn(ids, "[]")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	b, err = jsonColumn([]string{"a"}, "[]")
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, string(b))
}
