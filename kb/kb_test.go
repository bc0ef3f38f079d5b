package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/celestial-simulator/model"
)

type releasingRotation struct {
	released int
}

func (r *releasingRotation) Orientation(float64) model.Quaternion { return model.Identity() }
func (r *releasingRotation) Period() float64                      { return 0 }
func (r *releasingRotation) IsPeriodic() bool                     { return false }
func (r *releasingRotation) ValidRange() (begin, end float64)     { return 0, 0 }
func (r *releasingRotation) Release()                             { r.released++ }

type bodyGauge struct {
	mu sync.Mutex
	n  int
}

func (g *bodyGauge) SetBodies(n int) {
	g.mu.Lock()
	g.n = n
	g.mu.Unlock()
}

func body(id string) *Body {
	return &Body{Definition: model.BodyDefinition{ID: id, Name: id}}
}

func TestAddAndGetBody(t *testing.T) {
	store := NewCatalog()
	if err := store.AddBody(&Body{Definition: model.BodyDefinition{ID: "earth", Name: "Earth"}}); err != nil {
		t.Fatalf("AddBody error: %v", err)
	}
	got := store.GetBody("earth")
	if got == nil || got.Definition.Name != "Earth" {
		t.Fatalf("GetBody returned %#v, want name Earth", got)
	}
	if store.GetBody("mars") != nil {
		t.Fatalf("expected nil for unknown body")
	}
}

func TestAddBodyDuplicate(t *testing.T) {
	store := NewCatalog()
	if err := store.AddBody(body("earth")); err != nil {
		t.Fatalf("first AddBody error: %v", err)
	}
	if err := store.AddBody(body("earth")); !errors.Is(err, ErrBodyExists) {
		t.Fatalf("duplicate AddBody err = %v, want ErrBodyExists", err)
	}
	if err := store.AddBody(body("")); err == nil {
		t.Fatalf("expected empty ID to fail")
	}
}

func TestListBodiesSorted(t *testing.T) {
	store := NewCatalog()
	for _, id := range []string{"venus", "earth", "mercury"} {
		if err := store.AddBody(body(id)); err != nil {
			t.Fatalf("AddBody(%s): %v", id, err)
		}
	}
	list := store.ListBodies()
	if len(list) != 3 {
		t.Fatalf("ListBodies len = %d, want 3", len(list))
	}
	for i, want := range []string{"earth", "mercury", "venus"} {
		if list[i].Definition.ID != want {
			t.Fatalf("ListBodies[%d] = %s, want %s", i, list[i].Definition.ID, want)
		}
	}
}

func TestUpdateStateAndSubscribe(t *testing.T) {
	store := NewCatalog()
	var events []Event
	unsubscribe := store.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := store.AddBody(body("moon")); err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	state := model.BodyState{JD: 2451545, Position: model.Vec3{X: 384400}, Orientation: model.Identity()}
	if err := store.UpdateState("moon", state); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if err := store.UpdateState("phobos", state); !errors.Is(err, ErrBodyNotFound) {
		t.Fatalf("UpdateState unknown err = %v, want ErrBodyNotFound", err)
	}

	got, ok := store.State("moon")
	if !ok || got != state {
		t.Fatalf("State = %+v, %v; want %+v", got, ok, state)
	}
	if len(events) != 2 || events[0].Type != EventBodyAdded || events[1].Type != EventBodyUpdated || events[1].State != state {
		t.Fatalf("unexpected events %+v", events)
	}

	unsubscribe()
	if err := store.RemoveBody("moon"); err != nil {
		t.Fatalf("RemoveBody: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("received event after unsubscribe: %+v", events)
	}
	if _, ok := store.State("moon"); ok {
		t.Fatalf("State should be gone after RemoveBody")
	}
}

func TestRemoveBodyReleasesModels(t *testing.T) {
	gauge := &bodyGauge{}
	store := NewCatalog(WithBodyCountRecorder(gauge))
	rot := &releasingRotation{}
	if err := store.AddBody(&Body{Definition: model.BodyDefinition{ID: "a"}, Rotation: rot}); err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	if gauge.n != 1 {
		t.Fatalf("gauge = %d, want 1", gauge.n)
	}

	if err := store.RemoveBody("a"); err != nil {
		t.Fatalf("RemoveBody: %v", err)
	}
	if rot.released != 1 {
		t.Fatalf("released = %d, want 1", rot.released)
	}
	if gauge.n != 0 {
		t.Fatalf("gauge = %d, want 0", gauge.n)
	}
	if err := store.RemoveBody("a"); !errors.Is(err, ErrBodyNotFound) {
		t.Fatalf("second RemoveBody err = %v, want ErrBodyNotFound", err)
	}
}

func TestClearReleasesEverything(t *testing.T) {
	store := NewCatalog()
	rots := []*releasingRotation{{}, {}, {}}
	for i, r := range rots {
		if err := store.AddBody(&Body{Definition: model.BodyDefinition{ID: fmt.Sprintf("b%d", i)}, Rotation: r}); err != nil {
			t.Fatalf("AddBody: %v", err)
		}
	}

	var removed []string
	store.Subscribe(func(ev Event) {
		if ev.Type == EventBodyRemoved {
			removed = append(removed, ev.BodyID)
		}
	})
	store.Clear()

	if store.Len() != 0 {
		t.Fatalf("Len = %d after Clear", store.Len())
	}
	for i, r := range rots {
		if r.released != 1 {
			t.Fatalf("rotation %d released %d times", i, r.released)
		}
	}
	if len(removed) != 3 || removed[0] != "b0" {
		t.Fatalf("removed events = %v", removed)
	}
}

func TestConcurrentStateUpdates(t *testing.T) {
	store := NewCatalog()
	for i := 0; i < 10; i++ {
		if err := store.AddBody(body(fmt.Sprintf("b%d", i))); err != nil {
			t.Fatalf("AddBody: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("b%d", i)
			for j := 0; j < 100; j++ {
				_ = store.UpdateState(id, model.BodyState{JD: float64(j)})
				_ = store.ListBodies()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		if s, _ := store.State(fmt.Sprintf("b%d", i)); s.JD != 99 {
			t.Fatalf("b%d JD = %v, want 99", i, s.JD)
		}
	}
}
