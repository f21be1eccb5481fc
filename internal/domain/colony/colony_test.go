package colony

import "testing"

func TestBuildings(t *testing.T) {
	c := New("c1")
	if !c.AddBuilding("hut") {
		t.Fatalf("Expected first hut to be added")
	}
	if c.AddBuilding("hut") {
		t.Errorf("Expected duplicate hut to be refused")
	}
	if !c.HasBuilding("hut") || c.HasBuilding("well") {
		t.Errorf("Unexpected buildings: %v", c.Buildings)
	}
}

func TestSettleIsPermanent(t *testing.T) {
	c := New("c1")
	if c.Settle(5, 10) {
		t.Errorf("Did not expect to settle below threshold")
	}
	if !c.Settle(10, 10) {
		t.Errorf("Expected to settle at threshold")
	}
	if c.Settle(20, 10) {
		t.Errorf("Settling twice should not report a transition")
	}
	if !c.Settled {
		t.Errorf("Expected colony to stay settled")
	}
}
