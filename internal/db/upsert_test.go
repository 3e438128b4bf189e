package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var obsConfig = UpsertConfig{
	Table:        "observations",
	Columns:      []string{"firm_key", "year", "metric", "source", "value"},
	ConflictKeys: []string{"firm_key", "year", "metric", "source"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, obsConfig, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "observations",
		ConflictKeys: []string{"firm_key"},
	}, [][]any{{"MSFT", 2021}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "observations",
		Columns: []string{"firm_key", "year"},
	}, [][]any{{"MSFT", 2021}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_CommitsMerge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_observations"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_observations"}, obsConfig.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "observations" .* ON CONFLICT \("firm_key", "year", "metric", "source"\) DO UPDATE SET "value" = EXCLUDED."value"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	v1, v2 := 6.0e6, 7.1e6
	n, err := BulkUpsert(context.Background(), mock, obsConfig, [][]any{
		{"MSFT", 2021, "scope2_emissions", "cdp", &v1},
		{"MSFT", 2021, "scope2_emissions", "ghgrp", &v2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_observations"}, obsConfig.Columns).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, obsConfig, [][]any{
		{"MSFT", 2021, "scope2_emissions", "cdp", nil},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for observations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedupeByKey_LastWins(t *testing.T) {
	rows := [][]any{
		{"MSFT", 2021, "total_emissions", "ghgrp", 1.0},
		{"AAPL", 2021, "total_emissions", "ghgrp", 2.0},
		{"MSFT", 2021, "total_emissions", "ghgrp", 3.0},
	}
	got, err := dedupeByKey(obsConfig, rows)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MSFT", got[0][0])
	assert.Equal(t, 3.0, got[0][4])
	assert.Equal(t, "AAPL", got[1][0])
}

func TestDedupeByKey_Errors(t *testing.T) {
	_, err := dedupeByKey(UpsertConfig{Columns: []string{"a"}, ConflictKeys: []string{"b"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a column")

	_, err = dedupeByKey(obsConfig, [][]any{{"MSFT", 2021}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row has 2 values")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"observations", `"observations"`},
		{"research.observations", `"research"."observations"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"firm_key", "year", "metric"`, quoteAndJoin([]string{"firm_key", "year", "metric"}))
}
