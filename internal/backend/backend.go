package backend

import (
	"context"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/amqp"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
)

// Store is a family store that can also enumerate families and release its
// resources.
type Store interface {
	family.Store
	FamilyIDs(ctx context.Context) ([]string, error)
	Close() error
}

// EventLog is the membership audit trail. Only durable backends keep one.
type EventLog interface {
	RecordEvent(ctx context.Context, change core.FamilyChange) error
	ListEvents(ctx context.Context, familyID string, limit int) ([]core.FamilyChange, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and the optional integrations built for it.
type BackendResult struct {
	Store Store
	// Events is nil for the memory backend.
	Events EventLog
	// Publisher is nil when AMQP is disabled or unreachable.
	Publisher *amqp.Client
	// Ready reports whether the store can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Listeners returns the change listeners the backend contributes.
func (r *BackendResult) Listeners() []family.Listener {
	if r.Publisher == nil {
		return nil
	}
	return []family.Listener{r.Publisher}
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
