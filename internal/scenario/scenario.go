// Package scenario runs scripted colonies headlessly on a manual clock and
// checks their outcome. The scenario command and CI use it as a smoke test
// of the whole simulation with the shipped catalog.
package scenario

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/catalog"
	"github.com/MRamiBalles/colony/server/internal/engine"
	"github.com/MRamiBalles/colony/server/internal/platform/config"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

var epoch = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

// Result captures the outcome of one scenario.
type Result struct {
	Name     string        `json:"name"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual"`
	Hours    float64       `json:"hours"`
	Passed   bool          `json:"passed"`
	Err      string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}

// Scenario is one scripted run.
type Scenario struct {
	Name     string
	Expected string
	// Setup may adjust the options of this scenario's colonies. The
	// returned cleanup runs after Play.
	Setup func(opts *Options) (cleanup func(), err error)
	Play  func(ctx context.Context, s *Sim) (actual string, passed bool, err error)
}

// Sim is a colony driven by a manual clock.
type Sim struct {
	*engine.Engine
	Clock *timers.ManualClock
	Sink  *presentation.Recorder
	cfg   *config.Config
	opts  Options
}

// Options configure every Sim of a run.
type Options struct {
	Config  *config.Config
	Catalog *catalog.Catalog
	Logger  *logger.Logger
	Store   engine.SaveStore
}

// NewSim builds a fresh colony.
func NewSim(opts Options) (*Sim, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = Config()
	}
	clock := timers.NewManualClock(epoch)
	sink := &presentation.Recorder{}
	e, err := engine.New(engine.Deps{
		Config:  cfg,
		Catalog: opts.Catalog,
		Clock:   clock,
		Sink:    sink,
		Store:   opts.Store,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Sim{Engine: e, Clock: clock, Sink: sink, cfg: cfg, opts: opts}, nil
}

// Fork builds another colony with the same options, sharing the store.
func (s *Sim) Fork() (*Sim, error) {
	return NewSim(s.opts)
}

// Config is the deterministic profile scenarios run with.
func Config() *config.Config {
	cfg := config.FastConfig()
	cfg.IncidentChance = 0
	cfg.Seed = 7
	cfg.StoreDriver = "none"
	cfg.InitialPeople = 2
	return cfg
}

// Step advances one tick: due timers fire, then the colony refreshes.
func (s *Sim) Step() error {
	s.Clock.Advance(s.cfg.TickLength)
	s.Pump()
	return s.Tick(s.cfg.TickLength)
}

// RunHours steps until hours of game time have passed or until stops
// returns true.
func (s *Sim) RunHours(hours float64, stop func() bool) (float64, error) {
	elapsed := 0.0
	per := s.cfg.Hours(s.cfg.TickLength)
	for elapsed < hours {
		if stop != nil && stop() {
			break
		}
		if err := s.Step(); err != nil {
			return elapsed, err
		}
		elapsed += per
	}
	return elapsed, nil
}

// Autoplay gives every idle person the first available action of
// priorities, sending tired people to sleep first.
func (s *Sim) Autoplay(priorities ...string) error {
	view := s.View()
	for _, p := range view.People {
		if p.Dead || p.Busy != "" {
			continue
		}
		want := priorities
		if p.Energy < 30 {
			want = append([]string{"sleep"}, priorities...)
		}
		for _, id := range want {
			if !ready(p, id) {
				continue
			}
			ok, err := s.Click(p.ID, id)
			if err != nil {
				return err
			}
			if ok {
				break
			}
		}
	}
	return nil
}

func ready(p engine.PersonView, actionID string) bool {
	for _, a := range p.Actions {
		if a.ID == actionID {
			return a.State == "ready"
		}
	}
	return false
}

// Runner executes scenarios and reports on them.
type Runner struct {
	opts    Options
	log     *logger.Logger
	results []Result
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{opts: opts, log: log}
}

// Run plays sc on a fresh colony.
func (r *Runner) Run(ctx context.Context, sc Scenario) Result {
	start := time.Now()
	res := Result{Name: sc.Name, Expected: sc.Expected}

	opts := r.opts
	var err error
	if sc.Setup != nil {
		var cleanup func()
		cleanup, err = sc.Setup(&opts)
		if cleanup != nil {
			defer cleanup()
		}
	}
	var sim *Sim
	if err == nil {
		sim, err = NewSim(opts)
	}
	if err == nil {
		res.Actual, res.Passed, err = sc.Play(ctx, sim)
		res.Hours = sim.View().Hours
	}
	if err != nil {
		res.Passed = false
		res.Err = err.Error()
	}
	res.Took = time.Since(start)

	r.log.Info("scenario finished",
		zap.String("scenario", sc.Name),
		zap.Bool("passed", res.Passed),
		zap.Float64("hours", res.Hours),
		zap.Duration("took", res.Took))
	r.results = append(r.results, res)
	return res
}

// Results returns every result so far.
func (r *Runner) Results() []Result { return r.results }

// Failed counts the failed scenarios.
func (r *Runner) Failed() int {
	n := 0
	for _, res := range r.results {
		if !res.Passed {
			n++
		}
	}
	return n
}

// Report writes a human readable summary.
func (r *Runner) Report(w io.Writer) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	for _, res := range r.results {
		mark := "PASS"
		if !res.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %s (%.1fh in %s)\n", mark, res.Name, res.Hours, res.Took.Round(time.Millisecond))
		fmt.Fprintf(w, "       expected: %s\n", res.Expected)
		fmt.Fprintf(w, "       actual:   %s\n", res.Actual)
		if res.Err != "" {
			fmt.Fprintf(w, "       error:    %s\n", res.Err)
		}
	}
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "passed: %d  failed: %d\n", len(r.results)-r.Failed(), r.Failed())
}
