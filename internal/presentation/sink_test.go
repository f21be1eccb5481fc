package presentation

import (
	"testing"
	"time"
)

func TestRecorderFiltersAndFindsLast(t *testing.T) {
	rec := &Recorder{}
	h := PersonHandle("p1")

	rec.Show(h)
	rec.Update(h, View{"energy": 50.0})
	rec.SetFlag(h, FlagDying, true, time.Second)
	rec.Update(h, View{"energy": 40.0})

	if got := len(rec.Calls()); got != 4 {
		t.Fatalf("Expected 4 calls, got %d", got)
	}
	if got := len(rec.Calls("update")); got != 2 {
		t.Errorf("Expected 2 updates, got %d", got)
	}
	last, ok := rec.Last("update", h)
	if !ok || last.View["energy"] != 40.0 {
		t.Errorf("Expected last update with energy 40, got %+v", last)
	}
	if _, ok := rec.Last("remove", h); ok {
		t.Errorf("Did not expect a remove call")
	}
}

func TestFanoutReachesEverySink(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var sink Sink = Fanout{a, Nop{}, b}

	sink.Prompt(IncidentHandle("storm"), View{"name": "storm"})
	sink.Remove(ActionHandle("p1", "sleep"))

	for _, r := range []*Recorder{a, b} {
		if got := len(r.Calls("prompt", "remove")); got != 2 {
			t.Errorf("Expected 2 calls, got %d", got)
		}
	}
}
