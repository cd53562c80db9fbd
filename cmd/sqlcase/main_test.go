package main

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlcase/internal/bank"
	"sqlcase/internal/casewrap"
	"sqlcase/internal/config"
	"sqlcase/internal/sqlutil"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		want      string
		expectErr bool
	}{
		{
			name: "snake case",
			args: []string{"convert", "snakecase", "userName", "XMLHttpRequest", "*"},
			want: "user_name\nxml_http_request\n*\n",
		},
		{
			name: "camel case",
			args: []string{"convert", "camelcase", "created_at", "TEST-KEY"},
			want: "createdAt\ntestKey\n",
		},
		{
			name: "wildcard kept under every kind",
			args: []string{"convert", "camelcase", "*", "user_id", "*"},
			want: "*\nuserId\n*\n",
		},
		{
			name: "none leaves names",
			args: []string{"convert", "none", "user_id", "*"},
			want: "user_id\n*\n",
		},
		{
			name: "kind is case insensitive",
			args: []string{"convert", "SnakeCase", "testKey"},
			want: "test_key\n",
		},
		{
			name: "version",
			args: []string{"--version"},
			want: "sqlcase dev (none)\n",
		},
		{
			name:      "unknown kind",
			args:      []string{"convert", "kebabcase", "testKey"},
			expectErr: true,
		},
		{
			name:      "no command",
			args:      []string{},
			expectErr: true,
		},
		{
			name:      "unknown command",
			args:      []string{"migrate"},
			expectErr: true,
		},
		{
			name:      "query without table",
			args:      []string{"query", "--auto.connect=false"},
			expectErr: true,
		},
		{
			name:      "describe without table",
			args:      []string{"describe"},
			expectErr: true,
		},
		{
			name:      "describe with extra args",
			args:      []string{"describe", "users", "orders"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout.String())
		})
	}
}

func TestRun_QueryRejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"query", "--case.software=kebab", "users"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "configuration error")
	assert.Empty(t, stdout.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	rows := []map[string]any{{"userId": int64(1), "createdAt": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}}
	require.NoError(t, writeJSON(&buf, rows))
	assert.JSONEq(t, `[{"userId":1,"createdAt":"2024-01-02T00:00:00Z"}]`, buf.String())
}

func newMockBank(t *testing.T) (*bank.Bank, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return bank.New(db, sqlutil.MySQL, casewrap.DefaultCaseConfig()), mock
}

func testConfig() *config.Config {
	return &config.Config{
		Client:   "mysql",
		Database: config.DatabaseConfig{Database: "shop"},
		Case:     casewrap.DefaultCaseConfig(),
	}
}

func TestListTables(t *testing.T) {
	b, mock := newMockBank(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables WHERE table_schema = ?")).
		WithArgs("shop", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "comment"}).
			AddRow("order_items", "BASE TABLE", "").
			AddRow("user_summary", "VIEW", nil))

	out, err := listTables(context.Background(), testConfig(), b)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, out))
	assert.JSONEq(t, `[
		{"table":"order_items","name":"orderItems"},
		{"table":"user_summary","name":"userSummary","view":true}
	]`, buf.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeTable(t *testing.T) {
	header := []string{"name", "data_type", "column_type", "is_nullable", "default", "comment", "key"}

	tests := []struct {
		name      string
		table     string
		setupMock func(sqlmock.Sqlmock)
		want      string
		wantErr   string
	}{
		{
			name:  "application case table name",
			table: "orderItems",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("information_schema.columns").
					WithArgs("shop", "order_items").
					WillReturnRows(sqlmock.NewRows(header).
						AddRow("order_id", "bigint", "bigint", "NO", nil, "", "PRI").
						AddRow("item_status", "enum", "enum('new','shipped')", "YES", "new", "", ""))
			},
			want: `[
				{"column":"order_id","field":"orderId","type":"bigint","nullable":false,"primaryKey":true},
				{"column":"item_status","field":"itemStatus","type":"enum('new','shipped')","nullable":true,"default":"new","values":["new","shipped"]}
			]`,
		},
		{
			name:  "unknown table",
			table: "missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("information_schema.columns").
					WithArgs("shop", "missing").
					WillReturnRows(sqlmock.NewRows(header))
			},
			wantErr: `table "missing" not found`,
		},
		{
			name:  "query error",
			table: "users",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("information_schema.columns").WillReturnError(errors.New("denied"))
			},
			wantErr: "failed to list columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mock := newMockBank(t)
			tt.setupMock(mock)

			out, err := describeTable(context.Background(), testConfig(), b, tt.table)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				var buf bytes.Buffer
				require.NoError(t, writeJSON(&buf, out))
				assert.JSONEq(t, tt.want, buf.String())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
