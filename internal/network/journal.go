package network

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/domain/save"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/infra/storage"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
)

// JournalSource is the in-memory history of a running colony.
type JournalSource interface {
	Journal() []events.Entry
	Snapshot() save.Snapshot
}

// RecapSource summarizes the persisted history.
type RecapSource interface {
	Since(ctx context.Context, colonyID string, t time.Time) ([]storage.RecapEvent, error)
	ForActor(ctx context.Context, colonyID, actorID string) ([]storage.RecapEvent, error)
}

// JournalHandler serves the colony history: the live journal, the recap
// built from persisted events and a compressed save export.
type JournalHandler struct {
	source  JournalSource
	recap   RecapSource // optional
	journal string      // id the persisted events are stored under
	logger  *logger.Logger
}

// NewJournalHandler creates the handler. recap may be nil.
func NewJournalHandler(source JournalSource, recap RecapSource, journalID string, log *logger.Logger) *JournalHandler {
	return &JournalHandler{source: source, recap: recap, journal: journalID, logger: log}
}

// JournalResponse is the API response for journal queries.
type JournalResponse struct {
	TotalEvents int            `json:"total_events"`
	FilteredBy  string         `json:"filtered_by,omitempty"`
	GeneratedAt string         `json:"generated_at"`
	Events      []events.Entry `json:"events"`
}

// HandleJournal returns the retained journal, optionally filtered.
// GET /api/journal?type=CLICK&actor=p1&since=2026-01-01T00:00:00Z
func (jh *JournalHandler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	eventType := q.Get("type")
	actor := q.Get("actor")
	var since time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			jsonError(w, "Invalid since, want RFC3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	filtered := make([]events.Entry, 0)
	for _, e := range jh.source.Journal() {
		if eventType != "" && e.TypeName != eventType {
			continue
		}
		if actor != "" && e.ActorID != actor {
			continue
		}
		if !since.IsZero() && !e.Timestamp.After(since) {
			continue
		}
		filtered = append(filtered, e)
	}

	filterDesc := ""
	for _, f := range []struct{ k, v string }{{"type", eventType}, {"actor", actor}, {"since", q.Get("since")}} {
		if f.v == "" {
			continue
		}
		if filterDesc != "" {
			filterDesc += " "
		}
		filterDesc += f.k + "=" + f.v
	}

	jsonSuccess(w, JournalResponse{
		TotalEvents: len(filtered),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      filtered,
	})
}

// HandleStats returns per-type counts of the retained journal.
// GET /api/journal/stats
func (jh *JournalHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := jh.source.Journal()
	stats := map[string]int{"total_events": len(all)}
	for _, e := range all {
		stats[e.TypeName]++
	}

	jsonSuccess(w, map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// HandleRecap summarizes the persisted journal.
// GET /api/recap?since=RFC3339 or /api/recap?actor=p1
func (jh *JournalHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if jh.recap == nil {
		jsonError(w, "No persistent journal configured", http.StatusNotImplemented)
		return
	}

	var (
		recap []storage.RecapEvent
		err   error
	)
	q := r.URL.Query()
	if actor := q.Get("actor"); actor != "" {
		recap, err = jh.recap.ForActor(r.Context(), jh.journal, actor)
	} else {
		var since time.Time
		if s := q.Get("since"); s != "" {
			if since, err = time.Parse(time.RFC3339, s); err != nil {
				jsonError(w, "Invalid since, want RFC3339", http.StatusBadRequest)
				return
			}
		}
		recap, err = jh.recap.Since(r.Context(), jh.journal, since)
	}
	if err != nil {
		jh.logger.Error("Recap failed", zap.Error(err))
		jsonError(w, "Recap failed", http.StatusInternalServerError)
		return
	}

	jsonSuccess(w, map[string]interface{}{
		"count": len(recap),
		"recap": recap,
	})
}

// HandleExport streams the current colony as a compressed save.
// GET /api/save/export
func (jh *JournalHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := jh.source.Snapshot()
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="colony-`+snap.Colony.ID+`.sav"`)
	if err := storage.Encode(w, snap); err != nil {
		jh.logger.Error("Export failed", zap.Error(err))
		return
	}
	jh.logger.Event("EXPORT", snap.Colony.ID, "people:"+strconv.Itoa(len(snap.People)))
}

// RegisterRoutes sets up the journal API routes.
func (jh *JournalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/journal", jh.HandleJournal)
	mux.HandleFunc("/api/journal/stats", jh.HandleStats)
	mux.HandleFunc("/api/recap", jh.HandleRecap)
	mux.HandleFunc("/api/save/export", jh.HandleExport)
}
