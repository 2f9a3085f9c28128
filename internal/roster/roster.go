// Package roster holds the registered participants allowed to submit
// autobiographies and feedback.
package roster

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Haraven/autobiographical-exercise/internal/model"
)

// Roster is a read-only, ordered set of participant addresses. The order is
// the file order and drives reviewer assignment.
type Roster struct {
	users []string
	index map[string]struct{}
}

// New builds a roster from addresses, normalizing them and dropping empty
// entries and duplicates while keeping first-seen order.
func New(addresses []string) *Roster {
	r := &Roster{index: make(map[string]struct{}, len(addresses))}
	for _, addr := range addresses {
		addr = model.NormalizeAddress(addr)
		if addr == "" {
			continue
		}
		if _, dup := r.index[addr]; dup {
			continue
		}
		r.index[addr] = struct{}{}
		r.users = append(r.users, addr)
	}
	return r
}

// Load reads a JSON array of addresses from path. It always returns a usable
// roster: a missing or malformed file yields an empty roster together with
// the error, which the caller logs instead of stopping the service.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return New(nil), fmt.Errorf("reading roster %s: %w", path, err)
	}

	var addresses []string
	if err := json.Unmarshal(data, &addresses); err != nil {
		return New(nil), fmt.Errorf("parsing roster %s: %w", path, err)
	}

	return New(addresses), nil
}

// Contains reports whether addr is registered. Matching is case-insensitive.
func (r *Roster) Contains(addr string) bool {
	_, ok := r.index[model.NormalizeAddress(addr)]
	return ok
}

// All returns the registered addresses in load order.
func (r *Roster) All() []string {
	out := make([]string, len(r.users))
	copy(out, r.users)
	return out
}

// Len returns the number of registered addresses.
func (r *Roster) Len() int {
	return len(r.users)
}
