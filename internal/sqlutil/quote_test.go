package sqlutil

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "`users`"},
		{"user_data", "`user_data`"},
		{"select", "`select`"},         // reserved word
		{"first name", "`first name`"}, // space in name
		{"user`data", "`user``data`"},  // backtick in name
		{"", "``"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteIdentifier(tt.input))
		})
	}
}

func TestQuoteIdentifierANSI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", `"users"`},
		{"user_data", `"user_data"`},
		{`say"hi`, `"say""hi"`},
		{"", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteIdentifierANSI(tt.input))
		})
	}
}

func TestDialect(t *testing.T) {
	d, err := ParseDialect("MySQL")
	require.NoError(t, err)
	assert.Equal(t, MySQL, d)
	assert.Equal(t, "mysql", d.DriverName())
	assert.Equal(t, sq.Question, d.Placeholder())
	assert.Equal(t, "`user_id`", d.Quote("user_id"))
	assert.Equal(t, "*", d.Quote("*"))

	d, err = ParseDialect("pg")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, "pgx", d.DriverName())
	assert.Equal(t, sq.Dollar, d.Placeholder())
	assert.Equal(t, `"user_id"`, d.Quote("user_id"))

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}
