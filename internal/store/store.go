// Package store implements the import pipeline's persistence contracts on
// PostgreSQL via pgx. Every query is parameterized; row data never reaches
// SQL text.
package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldtrack/collarimport/internal/importer"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements importer.Store against a PostgreSQL database.
type Store struct {
	db  DBTX
	log *slog.Logger
}

// New creates a Store over the given connection or transaction.
func New(db DBTX, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// compile-time contract check
var _ importer.Store = (*Store)(nil)

// pgText wraps a normalized text field, NULL when absent.
func pgText(row importer.NormalizedRow, field string) pgtype.Text {
	if s := row.Text(field); s != "" {
		return pgtype.Text{String: s, Valid: true}
	}
	return pgtype.Text{}
}

// pgDate wraps a normalized date field, NULL when absent.
func pgDate(row importer.NormalizedRow, field string) pgtype.Date {
	if t, ok := row.Date(field); ok {
		return pgtype.Date{Time: t, Valid: true}
	}
	return pgtype.Date{}
}

// pgFloat wraps a normalized numeric field, NULL when absent.
func pgFloat(row importer.NormalizedRow, field string) pgtype.Float8 {
	if f, ok := row.Number(field); ok {
		return pgtype.Float8{Float64: f, Valid: true}
	}
	return pgtype.Float8{}
}

// pgBool wraps a normalized boolean field, NULL when absent.
func pgBool(row importer.NormalizedRow, field string) pgtype.Bool {
	if b, ok := row.Bool(field); ok {
		return pgtype.Bool{Bool: b, Valid: true}
	}
	return pgtype.Bool{}
}
