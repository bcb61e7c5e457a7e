package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPQueue: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.AMQPQueue != "q" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x", AMQPExchange: "e"}, true},
		{"unknown", Config{Type: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		if err != nil {
			t.Fatal(err)
		}
		defer res.Cleanup()
		if res.Events != nil || res.Publisher != nil || len(res.Listeners()) != 0 {
			t.Fatalf("memory backend should have no integrations: %+v", res)
		}
		if err := res.Ready(ctx); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "b.db")})
		if err != nil {
			t.Fatal(err)
		}
		defer res.Cleanup()
		if res.Events == nil {
			t.Fatal("sqlite backend should keep an event log")
		}
		if err := res.Ready(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
		ids, err := res.Store.FamilyIDs(ctx)
		if err != nil || len(ids) != 0 {
			t.Fatalf("fresh database should have no families: %v %v", ids, err)
		}
	})
}
