package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Impact classes of a recap line.
const (
	ImpactPositive = "POSITIVE"
	ImpactNegative = "NEGATIVE"
	ImpactNeutral  = "NEUTRAL"
)

// Recap turns the persisted journal into a "while you were away" summary.
type Recap struct {
	repo EventRepository
}

func NewRecap(repo EventRepository) *Recap {
	return &Recap{repo: repo}
}

// RecapEvent is a simplified event for the recap screen.
type RecapEvent struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	ActorID   string `json:"actor_id,omitempty"`
	Summary   string `json:"summary"`
	Impact    string `json:"impact"`
}

// Since summarizes what happened in a colony after t.
func (r *Recap) Since(ctx context.Context, colonyID string, t time.Time) ([]RecapEvent, error) {
	events, err := r.repo.Since(ctx, colonyID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to get events since %s: %w", t.Format(time.RFC3339), err)
	}
	return summarizeAll(events), nil
}

// ForActor summarizes the history of one person or incident.
func (r *Recap) ForActor(ctx context.Context, colonyID, actorID string) ([]RecapEvent, error) {
	events, err := r.repo.ByActor(ctx, colonyID, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for %s: %w", actorID, err)
	}
	return summarizeAll(events), nil
}

func summarizeAll(events []StoredEvent) []RecapEvent {
	recap := make([]RecapEvent, 0, len(events))
	for _, e := range events {
		summary, ok := summarize(e)
		if !ok {
			continue
		}
		recap = append(recap, RecapEvent{
			Timestamp: e.Timestamp.Format(time.RFC3339),
			EventType: e.EventType,
			ActorID:   e.ActorID,
			Summary:   summary,
			Impact:    impactOf(e.EventType),
		})
	}
	return recap
}

type recapPayload struct {
	Text    string   `json:"text"`
	Name    string   `json:"name"`
	Action  string   `json:"action"`
	Targets []string `json:"targets"`
	Started bool     `json:"started"`
	Amounts []struct {
		ResourceID string  `json:"resource"`
		Quantity   float64 `json:"quantity"`
	} `json:"amounts"`
	Cancelled bool `json:"cancelled"`
}

// summarize returns a human readable line, or false for noise.
func summarize(e StoredEvent) (string, bool) {
	var p recapPayload
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &p)
	}

	switch e.EventType {
	case "LOG":
		return p.Text, p.Text != ""
	case "ARRIVAL":
		return p.Name + " arrived.", true
	case "LOOSE_SOMEONE":
		return p.Name + " died.", true
	case "LOOSE":
		return "The colony was lost.", true
	case "WIN":
		return "The colony escaped.", true
	case "BUILD":
		return "Built " + joinTargets(p.Targets) + ".", true
	case "UNLOCK":
		return "New tasks: " + joinTargets(p.Targets) + ".", true
	case "RUNS_OUT":
		if len(p.Amounts) > 0 {
			return "Ran out of " + p.Amounts[0].ResourceID + ".", true
		}
		return "A resource ran out.", true
	case "INCIDENT_START", "EVENT_START":
		return p.Name + " began.", true
	case "INCIDENT_END", "EVENT_END":
		if p.Cancelled {
			return p.Name + " was averted.", true
		}
		return p.Name + " is over.", true
	case "SAVE":
		return "The colony was saved.", true
	}
	return "", false
}

func joinTargets(ids []string) string {
	switch len(ids) {
	case 0:
		return "nothing"
	case 1:
		return ids[0]
	}
	out := ids[0]
	for _, id := range ids[1 : len(ids)-1] {
		out += ", " + id
	}
	return out + " and " + ids[len(ids)-1]
}

func impactOf(eventType string) string {
	switch eventType {
	case "LOOSE", "LOOSE_SOMEONE", "RUNS_OUT", "INCIDENT_START":
		return ImpactNegative
	case "WIN", "BUILD", "UNLOCK", "ARRIVAL", "INCIDENT_END":
		return ImpactPositive
	default:
		return ImpactNeutral
	}
}
