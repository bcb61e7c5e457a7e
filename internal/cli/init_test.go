package cli

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
)

func TestGracefulShutdownRunsCleanupOnCancel(t *testing.T) {
	logger := log.New(log.Config{Writer: io.Discard})

	var cleaned bool
	ctx, cancel, done := GracefulShutdown(logger, time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context should carry the shutdown timeout")
		}
		cleaned = true
		return errors.New("logged, not fatal")
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if !cleaned {
		t.Fatal("cleanup was not called")
	}
	if ctx.Err() == nil {
		t.Fatal("context should be cancelled")
	}
}

func TestInitSQLite(t *testing.T) {
	logger := log.New(log.Config{Writer: io.Discard})
	repo := InitSQLite(logger, t.TempDir()+"/cli.db")
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
