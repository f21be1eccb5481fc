// Package main runs the scripted colony scenarios against the real engine
// with a manual clock, and exits non-zero when any of them fails.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/MRamiBalles/colony/server/internal/catalog"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/scenario"
)

func main() {
	only := flag.String("only", "", "run a single scenario by name")
	asJSON := flag.Bool("json", false, "print results as JSON")
	catalogPath := flag.String("catalog", "", "catalog file, defaults to the built-in one")
	verbose := flag.Bool("v", false, "log each scenario")
	flag.Parse()

	opts := scenario.Options{Logger: logger.NewNop()}
	if *verbose {
		opts.Logger = logger.New(logger.Config{Level: "info", Format: "console"})
	}
	if *catalogPath != "" {
		cat, err := catalog.LoadFile(*catalogPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to load catalog:", err)
			os.Exit(2)
		}
		opts.Catalog = cat
	}

	scenarios := scenario.Builtin()
	if *only != "" {
		sc, ok := scenario.Find(*only)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *only)
			os.Exit(2)
		}
		scenarios = []scenario.Scenario{sc}
	}

	ctx := context.Background()
	runner := scenario.NewRunner(opts)
	for _, sc := range scenarios {
		runner.Run(ctx, sc)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(runner.Results())
	} else {
		fmt.Println("COLONY SCENARIOS")
		runner.Report(os.Stdout)
	}

	if runner.Failed() > 0 {
		os.Exit(1)
	}
}
