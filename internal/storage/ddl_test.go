package storage

import (
	"context"
	"errors"
	"testing"
)

type recordingExec struct {
	stmts []string
	err   error
}

func (r *recordingExec) Exec(_ context.Context, sql string) error {
	r.stmts = append(r.stmts, sql)
	return r.err
}

func TestEnsureSchema(t *testing.T) {
	RegisterDDL("fake", func(ctx context.Context, exec Execer) error {
		if err := exec.Exec(ctx, "CREATE TABLE t (id Int64)"); err != nil {
			return err
		}
		return exec.Exec(ctx, "CREATE INDEX i ON t (id)")
	})

	exec := &recordingExec{}
	if err := EnsureSchema(context.Background(), "fake", exec); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(exec.stmts) != 2 {
		t.Fatalf("stmts = %v", exec.stmts)
	}

	boom := errors.New("boom")
	exec = &recordingExec{err: boom}
	if err := EnsureSchema(context.Background(), "fake", exec); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}

	if err := EnsureSchema(context.Background(), "nope", exec); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
