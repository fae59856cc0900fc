// Package store persists session state.
//
// Two backends are provided: Memory for tests and single-process use, and
// SQLite for durable storage. Both store the JSON form of
// orchestrator.State, so a loaded session is always a fresh copy that the
// caller owns exclusively.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmedinaorbidi/clarity/internal/orchestrator"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Summary describes a stored session without loading it.
type Summary struct {
	ID        string    `json:"id"`
	Phase     skills.ID `json:"current_phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store loads and saves sessions.
type Store interface {
	Load(ctx context.Context, id string) (*orchestrator.State, error)
	Save(ctx context.Context, st *orchestrator.State) error

	// List returns summaries ordered by most recent update first.
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open creates a store for driver. dsn is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func summarize(st *orchestrator.State) Summary {
	return Summary{
		ID:        st.ID,
		Phase:     st.Phase(),
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}
