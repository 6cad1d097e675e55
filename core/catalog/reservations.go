package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/regiondispatch/core/model"
)

// ErrLocationInUse is returned when a location is already held by a call.
var ErrLocationInUse = errors.New("location in use")

// Reservations tracks which locations are held by active calls. No two
// active calls may hold the same location.
type Reservations struct {
	mu    sync.Mutex
	inUse map[string]int64
}

// NewReservations returns an empty registry.
func NewReservations() *Reservations {
	return &Reservations{inUse: make(map[string]int64)}
}

// Reserve marks the location as held by callID.
func (r *Reservations) Reserve(locationID string, callID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.inUse[locationID]; ok && owner != callID {
		return fmt.Errorf("%w: %s held by call %d", ErrLocationInUse, locationID, owner)
	}
	r.inUse[locationID] = callID
	return nil
}

// Release frees the location. Releasing a free location is a no-op.
func (r *Reservations) Release(locationID string) {
	r.mu.Lock()
	delete(r.inUse, locationID)
	r.mu.Unlock()
}

// InUse reports whether the location is held.
func (r *Reservations) InUse(locationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inUse[locationID]
	return ok
}

// Count returns the number of held locations.
func (r *Reservations) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inUse)
}

// Free returns the locations of z matching types that no call holds.
func (r *Reservations) Free(z *model.Zone, types []string) []*model.Location {
	if z == nil {
		return nil
	}
	candidates := z.LocationsOfType(types)
	r.mu.Lock()
	defer r.mu.Unlock()
	out := candidates[:0]
	for _, l := range candidates {
		if _, held := r.inUse[l.ID]; !held {
			out = append(out, l)
		}
	}
	return out
}
