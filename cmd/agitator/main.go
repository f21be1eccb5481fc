// Package main - agitator
// Load generator for stress testing: many websocket players clicking
// random actions on one colony.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/colony/server/internal/engine"
	"github.com/MRamiBalles/colony/server/internal/network"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	Output         string
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Replies          int64
	Rejected         int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

// target is one clickable action seen in a colony view.
type target struct {
	person string
	action string
}

// frame is the part of a server frame the agitator reads.
type frame struct {
	Kind    string          `json:"kind"`
	Type    string          `json:"type"`
	View    json.RawMessage `json:"view"`
	Payload json.RawMessage `json:"payload"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error"`
}

func main() {
	// Parse flags
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent clients")
	interval := flag.Duration("interval", 100*time.Millisecond, "Action interval per client")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	output := flag.String("out", "stress_test_results.json", "Results file, empty to skip")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		Output:         *output,
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - Colony Stress Test")
	fmt.Println("=========================================")
	fmt.Printf("Server: %s\n", config.ServerURL)
	fmt.Printf("Clients: %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	// Setup graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := runStressTest(ctx, config)
	printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\nStarting clients...")

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sent := atomic.LoadInt64(&stats.MessagesSent)
				recv := atomic.LoadInt64(&stats.MessagesReceived)
				errs := atomic.LoadInt64(&stats.Errors)
				fmt.Printf("Progress: Sent=%d Recv=%d Errors=%d\n", sent, recv, errs)
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	var targets []target

	// Start receiver goroutine
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)
			raw := f.View
			switch f.Kind {
			case network.FrameView:
			case network.FrameReply:
				atomic.AddInt64(&stats.Replies, 1)
				if !f.OK {
					atomic.AddInt64(&stats.Rejected, 1)
				}
				if f.Type != network.CmdView {
					continue
				}
				raw = f.Payload
			default:
				continue
			}
			var view engine.ColonyView
			if json.Unmarshal(raw, &view) == nil {
				mu.Lock()
				targets = clickable(view)
				mu.Unlock()
			}
		}
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))
	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			cmd := randomCommand(rng, targets)
			mu.Unlock()
			start := time.Now()

			if err := conn.WriteJSON(cmd); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}

			latency := time.Since(start)
			atomic.AddInt64(&stats.MessagesSent, 1)

			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, latency)
			stats.mu.Unlock()
		}
	}
}

func clickable(view engine.ColonyView) []target {
	var out []target
	for _, p := range view.People {
		if p.Dead {
			continue
		}
		for _, a := range p.Actions {
			out = append(out, target{person: p.ID, action: a.ID})
		}
	}
	return out
}

// randomCommand mostly clicks, with the occasional view refresh or pause
// toggle. Until a view arrives it asks for one.
func randomCommand(rng *rand.Rand, targets []target) network.Command {
	if len(targets) == 0 {
		return network.Command{Type: network.CmdView}
	}
	switch n := rng.Intn(100); {
	case n < 5:
		return network.Command{Type: network.CmdView}
	case n < 7:
		return network.Command{Type: network.CmdPause}
	case n < 10:
		return network.Command{Type: network.CmdResume}
	}
	t := targets[rng.Intn(len(targets))]
	return network.Command{Type: network.CmdClick, Person: t.person, Action: t.action}
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	replies := atomic.LoadInt64(&stats.Replies)
	rejected := atomic.LoadInt64(&stats.Rejected)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Messages Sent:     %d\n", sent)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Replies:           %d (%d rejected)\n", replies, rejected)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	if len(stats.Latencies) > 0 {
		var total time.Duration
		var min, max time.Duration = stats.Latencies[0], stats.Latencies[0]

		for _, l := range stats.Latencies {
			total += l
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}

		avg := total / time.Duration(len(stats.Latencies))

		fmt.Printf("\nLatency:\n")
		fmt.Printf("  Min: %v\n", min)
		fmt.Printf("  Avg: %v\n", avg)
		fmt.Printf("  Max: %v\n", max)
	}

	// Verdict
	fmt.Println("\n-----------------------------------------")
	if errs == 0 && replies > 0 {
		fmt.Println("TEST PASSED: System handled the load")
	} else if float64(errs)/float64(sent+1) < 0.05 {
		fmt.Println("TEST WARNING: Some errors detected")
	} else {
		fmt.Println("TEST FAILED: High error rate")
	}
	fmt.Println("=========================================")

	if config.Output == "" {
		return
	}
	results := map[string]interface{}{
		"messages_sent":      sent,
		"messages_received":  recv,
		"replies":            replies,
		"rejected":           rejected,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.Output, jsonData, 0644); err != nil {
		log.Printf("Failed to write results: %v", err)
		return
	}
	fmt.Printf("\nResults saved to %s\n", config.Output)
}
