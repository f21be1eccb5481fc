package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/engine"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
)

// CommandAPI exposes colony commands over plain HTTP and upgrades
// websocket connections onto the hub.
type CommandAPI struct {
	colony   Colony
	hub      *Hub
	logger   *logger.Logger
	upgrader websocket.Upgrader
	rps      float64
	buffer   int
	timeout  time.Duration
	ctx      context.Context
}

// APIOptions tune the per-client limits.
type APIOptions struct {
	MessagesPerSecond float64
	SendBuffer        int
	Timeout           time.Duration // per HTTP command, defaults to 10s
}

// NewCommandAPI creates the handler set. ctx bounds websocket sessions.
func NewCommandAPI(ctx context.Context, colony Colony, hub *Hub, log *logger.Logger, opts APIOptions) *CommandAPI {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &CommandAPI{
		colony: colony,
		hub:    hub,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rps:     opts.MessagesPerSecond,
		buffer:  opts.SendBuffer,
		timeout: opts.Timeout,
		ctx:     ctx,
	}
}

// HandleCommand runs one command.
// POST /api/command {"type":"CLICK","person":"p1","action":"gather_wood"}
func (a *CommandAPI) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&cmd); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	payload, ok, err := Dispatch(ctx, a.colony, cmd)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	a.logger.Event("COMMAND", cmd.Person, cmd.Type)
	jsonSuccess(w, map[string]interface{}{
		"ok":      ok,
		"type":    cmd.Type,
		"payload": payload,
	})
}

// HandleColony returns the current colony view.
// GET /api/colony
func (a *CommandAPI) HandleColony(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonSuccess(w, a.colony.View())
}

// HandleWS upgrades the connection and attaches a client to the hub.
// GET /ws
func (a *CommandAPI) HandleWS(w http.ResponseWriter, r *http.Request) {
	if a.hub.Full() {
		jsonError(w, "Too many clients", http.StatusServiceUnavailable)
		return
	}
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(a.hub, conn, a.colony, a.rps, a.buffer)
	if !client.Register() {
		conn.Close()
		return
	}
	client.reply(Frame{Kind: FrameView, Payload: a.colony.View()})
	go client.WritePump()
	go client.ReadPump(a.ctx)
}

// RegisterRoutes sets up the command API routes.
func (a *CommandAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/command", a.HandleCommand)
	mux.HandleFunc("/api/colony", a.HandleColony)
	mux.HandleFunc("/ws", a.HandleWS)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrTooManyRecruits):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownPerson),
		errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrUnknownIncident):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNoStore):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
