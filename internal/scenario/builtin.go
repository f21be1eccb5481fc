package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MRamiBalles/colony/server/internal/engine"
	"github.com/MRamiBalles/colony/server/internal/infra/storage"
)

// Builtin returns the scenarios shipped with the server, in run order.
func Builtin() []Scenario {
	return []Scenario{
		FirstHut(),
		StormWeathered(),
		SaveAndResume(),
		Recruits(),
		Exhaustion(),
	}
}

// Find returns the builtin scenario called name.
func Find(name string) (Scenario, bool) {
	for _, sc := range Builtin() {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

func hasBuilding(v engine.ColonyView, id string) bool {
	for _, b := range v.Buildings {
		if b == id {
			return true
		}
	}
	return false
}

func count(v engine.ColonyView, id string) float64 {
	for _, r := range v.Resources {
		if r.ID == id {
			return r.Count
		}
	}
	return 0
}

func wakeEveryone(s *Sim) error {
	for _, p := range s.View().People {
		if _, err := s.Click(p.ID, "wake_up"); err != nil {
			return err
		}
	}
	_, err := s.RunHours(1, nil)
	return err
}

// FirstHut plays two colonists until they build a hut.
func FirstHut() Scenario {
	return Scenario{
		Name:     "first-hut",
		Expected: "two colonists gather wood and raise a hut within 100 hours",
		Play: func(ctx context.Context, s *Sim) (string, bool, error) {
			if err := s.Found("Ada", "Bruno"); err != nil {
				return "", false, err
			}
			if err := wakeEveryone(s); err != nil {
				return "", false, err
			}
			var playErr error
			hours, err := s.RunHours(100, func() bool {
				if ctx.Err() != nil || playErr != nil {
					return true
				}
				if hasBuilding(s.View(), "hut") {
					return true
				}
				playErr = s.Autoplay("build_hut", "gather_wood", "fetch_water")
				return false
			})
			if err == nil {
				err = playErr
			}
			if err != nil {
				return "", false, err
			}
			v := s.View()
			if !hasBuilding(v, "hut") {
				return fmt.Sprintf("no hut after %.0f hours, %.0f wood", hours, count(v, "wood")), false, nil
			}
			return fmt.Sprintf("hut built after %.1f hours", hours), v.Settled, nil
		},
	}
}

// StormWeathered confirms a storm and waits for it to pass.
func StormWeathered() Scenario {
	return Scenario{
		Name:     "storm-weathered",
		Expected: "a confirmed storm drains energy, then ends on its own",
		Play: func(ctx context.Context, s *Sim) (string, bool, error) {
			if err := s.Found("Ada", "Bruno"); err != nil {
				return "", false, err
			}
			if ok, err := s.TriggerIncident("storm"); err != nil || !ok {
				return "storm did not trigger", false, err
			}
			if ok, err := s.Confirm("storm", true); err != nil || !ok {
				return "storm was not confirmed", false, err
			}
			energy := s.View().People[0].Energy

			hours, err := s.RunHours(24, func() bool {
				return ctx.Err() != nil || len(s.View().Incidents) == 0
			})
			if err != nil {
				return "", false, err
			}
			if len(s.View().Incidents) > 0 {
				return fmt.Sprintf("storm still raging after %.0f hours", hours), false, nil
			}

			ended := false
			for _, e := range s.Journal() {
				if e.TypeName == "INCIDENT_END" && e.ActorID == "storm" {
					ended = true
				}
			}
			actual := fmt.Sprintf("storm passed after %.1f hours, first colonist at %.0f energy", hours, energy)
			return actual, ended && energy < 100, nil
		},
	}
}

// SaveAndResume saves mid-game to a compressed file and loads it into a
// second colony.
func SaveAndResume() Scenario {
	return Scenario{
		Name:     "save-and-resume",
		Expected: "a loaded colony matches the saved one",
		Setup: func(opts *Options) (func(), error) {
			dir, err := os.MkdirTemp("", "colony-scenario-*")
			if err != nil {
				return nil, err
			}
			opts.Store = storage.NewFileSaveStore(filepath.Join(dir, "colony.sav"))
			return func() { os.RemoveAll(dir) }, nil
		},
		Play: func(ctx context.Context, s *Sim) (string, bool, error) {
			if err := s.Found("Ada", "Bruno"); err != nil {
				return "", false, err
			}
			if err := wakeEveryone(s); err != nil {
				return "", false, err
			}
			if err := s.Autoplay("gather_wood", "gather_food"); err != nil {
				return "", false, err
			}
			if _, err := s.RunHours(1, nil); err != nil {
				return "", false, err
			}
			if err := s.Save(ctx); err != nil {
				return "", false, err
			}
			before := s.View()

			other, err := s.Fork()
			if err != nil {
				return "", false, err
			}
			if !other.Load(ctx) {
				return "load failed", false, nil
			}
			after := other.View()

			same := before.Hours == after.Hours &&
				len(before.People) == len(after.People) &&
				count(before, "wood") == count(after, "wood") &&
				count(before, "food") == count(after, "food")
			for i := range before.People {
				if !same {
					break
				}
				same = before.People[i].Busy == after.People[i].Busy
			}
			return fmt.Sprintf("%d people, %.1f hours, busy with %q", len(after.People), after.Hours, after.People[0].Busy), same, nil
		},
	}
}

// Recruits adds colonists through the name source.
func Recruits() Scenario {
	return Scenario{
		Name:     "recruits",
		Expected: "two recruits join a colony of two",
		Play: func(ctx context.Context, s *Sim) (string, bool, error) {
			if err := s.Found(); err != nil {
				return "", false, err
			}
			res := <-s.Recruit(ctx, 2)
			if res.Err != nil {
				return "", false, res.Err
			}
			n := len(s.View().People)
			return fmt.Sprintf("%d people", n), n == 4, nil
		},
	}
}

// Exhaustion leaves a lone settler idle until the colony is lost.
func Exhaustion() Scenario {
	return Scenario{
		Name:     "exhaustion",
		Expected: "an idle settler eventually dies and the colony is lost",
		Play: func(ctx context.Context, s *Sim) (string, bool, error) {
			if err := s.Found("Solo"); err != nil {
				return "", false, err
			}
			if err := wakeEveryone(s); err != nil {
				return "", false, err
			}
			var playErr error
			settle, err := s.RunHours(100, func() bool {
				if ctx.Err() != nil || playErr != nil || s.View().Settled {
					return true
				}
				playErr = s.Autoplay("gather_wood")
				return false
			})
			if err == nil {
				err = playErr
			}
			if err != nil {
				return "", false, err
			}
			if !s.View().Settled {
				return fmt.Sprintf("never settled in %.0f hours", settle), false, nil
			}

			hours, err := s.RunHours(1000, func() bool {
				return ctx.Err() != nil || s.View().Lost
			})
			if err != nil {
				return "", false, err
			}
			v := s.View()
			if !v.Lost {
				return fmt.Sprintf("still alive after %.0f idle hours", hours), false, nil
			}
			return fmt.Sprintf("settled after %.0f hours, lost %.0f hours later", settle, hours), true, nil
		},
	}
}
