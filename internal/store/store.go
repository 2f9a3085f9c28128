package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Haraven/autobiographical-exercise/internal/model"
)

// ErrCorrupt is returned by Load when the persisted pairing table cannot be
// trusted. It must stop the service: discarding the table would re-assign
// reviewers and re-send delivered feedback.
var ErrCorrupt = errors.New("pairing table is corrupt")

// PairingStore defines the persistence interface for the pairing table.
type PairingStore interface {
	// Load returns every persisted pairing in creation order. A store that
	// was never flushed yields an empty set.
	Load(ctx context.Context) ([]model.Pairing, error)

	// Flush replaces the persisted table with pairings, all or nothing. An
	// empty set is ignored so an unloaded in-memory table never wipes a
	// saved one.
	Flush(ctx context.Context, pairings []model.Pairing) error

	// Close releases any underlying resources.
	Close() error
}

// Open returns the pairing store for the configured driver.
func Open(driver, path string) (PairingStore, error) {
	switch driver {
	case model.StoreDriverJSON, "":
		return NewJSONStore(path), nil
	case model.StoreDriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown pairing store driver %q", driver)
	}
}

// validateLoaded wraps invariant violations in a loaded table as corruption.
func validateLoaded(source string, pairings []model.Pairing) error {
	if err := model.ValidatePairings(pairings); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, source, err)
	}
	return nil
}
