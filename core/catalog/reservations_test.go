package catalog

import (
	"errors"
	"sync"
	"testing"

	"github.com/kilianp07/regiondispatch/core/model"
)

func TestReservationsReserveRelease(t *testing.T) {
	z := &model.Zone{ID: "Z", Locations: []*model.Location{{ID: "a", Type: "street"}, {ID: "b", Type: "street"}}}
	r := NewReservations()
	if err := r.Reserve("a", 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := r.Reserve("a", 1); err != nil {
		t.Fatalf("same owner should be allowed: %v", err)
	}
	if err := r.Reserve("a", 2); !errors.Is(err, ErrLocationInUse) {
		t.Fatalf("expected ErrLocationInUse got %v", err)
	}
	free := r.Free(z, []string{"street"})
	if len(free) != 1 || free[0].ID != "b" {
		t.Fatalf("expected only b free, got %v", free)
	}
	r.Release("a")
	r.Release("a")
	if r.InUse("a") {
		t.Fatalf("a should be released")
	}
	if got := len(r.Free(z, []string{"street"})); got != 2 {
		t.Fatalf("expected 2 free got %d", got)
	}
}

func TestReservationsConcurrent(t *testing.T) {
	r := NewReservations()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := r.Reserve("x", id); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one owner, got %d", winners)
	}
	if r.Count() != 1 {
		t.Fatalf("expected one reservation got %d", r.Count())
	}
}
