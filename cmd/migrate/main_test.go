package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/migrate"
)

func TestRunCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	logg := logger.New(logger.Options{ServiceName: "migrate-test"})
	var out bytes.Buffer

	if err := run(context.Background(), options{cmd: "create", dir: dir, name: "Add Payout Batches"}, &out, logg); err != nil {
		t.Fatalf("create: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), "_add_payout_batches.sql") {
		t.Fatalf("unexpected migration files: %v", entries)
	}

	out.Reset()
	if err := run(context.Background(), options{cmd: "validate", dir: dir}, &out, logg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "passed") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunValidatesShippedMigrations(t *testing.T) {
	dir := filepath.Join("..", "..", migrate.DefaultDir)
	logg := logger.New(logger.Options{ServiceName: "migrate-test"})
	if err := run(context.Background(), options{cmd: "validate", dir: dir}, &bytes.Buffer{}, logg); err != nil {
		t.Fatalf("validate shipped migrations: %v", err)
	}
}

func TestRunValidatesEmbeddedByDefault(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "migrate-test"})
	var out bytes.Buffer
	if err := run(context.Background(), options{cmd: "validate"}, &out, logg); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	if !strings.Contains(out.String(), "passed") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "migrate-test"})
	cases := []options{
		{cmd: "create", dir: t.TempDir()},
		{cmd: "version"},
		{cmd: "truncate"},
	}
	for _, opts := range cases {
		t.Run(opts.cmd, func(t *testing.T) {
			err := run(context.Background(), opts, &bytes.Buffer{}, logg)
			if !errors.Is(err, errUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
		})
	}
}
