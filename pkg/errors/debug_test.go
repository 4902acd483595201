package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_open_buyer", TableName: "orders", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "create order")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %q", d.Code)
	}
	if d.Postgres == nil || d.Postgres.Constraint != "ux_orders_open_buyer" {
		t.Fatalf("expected pg constraint, got %+v", d.Postgres)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}

	fields := d.Fields()
	if fields["pg_code"] != "23505" || fields["pg_table"] != "orders" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg_column must be omitted")
	}
}

func TestDumpWalksJoinedErrors(t *testing.T) {
	pqErr := &pq.Error{Code: "40001", Message: "could not serialize access"}
	err := stdErrors.Join(stdErrors.New("rollback failed"), fmt.Errorf("commit: %w", pqErr))

	d := Dump(err)
	if d.Postgres == nil || d.Postgres.Code != "40001" {
		t.Fatalf("expected pq details, got %+v", d.Postgres)
	}
	if len(d.Chain) != 4 {
		t.Fatalf("expected join plus three branches, got %v", d.Chain)
	}
	if d.Code != "" {
		t.Fatalf("plain errors carry no code, got %q", d.Code)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Postgres != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
