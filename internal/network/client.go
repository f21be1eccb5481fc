package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MRamiBalles/colony/server/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Colony is what players may do to a running colony.
type Colony interface {
	Click(personID, actionID string) (bool, error)
	TriggerIncident(id string) (bool, error)
	Confirm(incidentID string, accept bool) (bool, error)
	CancelIncident(incidentID string) (bool, error)
	Pause() bool
	Resume() bool
	Key(code int)
	Save(ctx context.Context) error
	Recruit(ctx context.Context, n int) <-chan engine.RecruitResult
	View() engine.ColonyView
}

var _ Colony = (*engine.Engine)(nil)

// Command types accepted from clients.
const (
	CmdClick    = "CLICK"
	CmdTrigger  = "TRIGGER"
	CmdConfirm  = "CONFIRM"
	CmdDecline  = "DECLINE"
	CmdCancel   = "CANCEL"
	CmdPause    = "PAUSE"
	CmdResume   = "RESUME"
	CmdKey      = "KEY"
	CmdSave     = "SAVE"
	CmdRecruit  = "RECRUIT"
	CmdView     = "VIEW"
	maxRecruits = 10
)

var (
	// ErrUnknownCommand is returned for an unrecognised command type.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrTooManyRecruits is returned when a recruit count exceeds the cap.
	ErrTooManyRecruits = errors.New("too many recruits")
)

// Command is one incoming request from a player.
type Command struct {
	Type     string `json:"type"`
	Person   string `json:"person,omitempty"`
	Action   string `json:"action,omitempty"`
	Incident string `json:"incident,omitempty"`
	Key      int    `json:"key,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// Dispatch runs cmd against colony. The returned value is the reply
// payload, and ok reports whether the command had an effect.
func Dispatch(ctx context.Context, colony Colony, cmd Command) (payload any, ok bool, err error) {
	switch cmd.Type {
	case CmdClick:
		ok, err = colony.Click(cmd.Person, cmd.Action)
	case CmdTrigger:
		ok, err = colony.TriggerIncident(cmd.Incident)
	case CmdConfirm:
		ok, err = colony.Confirm(cmd.Incident, true)
	case CmdDecline:
		ok, err = colony.Confirm(cmd.Incident, false)
	case CmdCancel:
		ok, err = colony.CancelIncident(cmd.Incident)
	case CmdPause:
		ok = colony.Pause()
	case CmdResume:
		ok = colony.Resume()
	case CmdKey:
		colony.Key(cmd.Key)
		ok = true
	case CmdSave:
		err = colony.Save(ctx)
		ok = err == nil
	case CmdRecruit:
		n := cmd.Count
		if n <= 0 {
			n = 1
		}
		if n > maxRecruits {
			return nil, false, fmt.Errorf("%w: at most %d at once", ErrTooManyRecruits, maxRecruits)
		}
		select {
		case res := <-colony.Recruit(ctx, n):
			return res.People, res.Err == nil, res.Err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	case CmdView:
		return colony.View(), true, nil
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil, ok, err
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	colony  Colony
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a client allowed rps commands per second.
func NewClient(hub *Hub, conn *websocket.Conn, colony Colony, rps float64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, buffer),
		colony:  colony,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.done:
		return false
	}
}

// ReadPump pumps commands from the websocket connection to the colony.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read failed", zap.Error(err))
				c.hub.metrics.RecordWSError()
			}
			return
		}
		c.hub.metrics.RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(Frame{Kind: FrameReply, Error: "invalid command"})
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *Client) handle(ctx context.Context, cmd Command) {
	if !c.limiter.Allow() {
		c.hub.logger.Warn("Rate limit exceeded", zap.String("command", cmd.Type))
		c.reply(Frame{Kind: FrameReply, Type: cmd.Type, Error: "rate limited"})
		return
	}

	payload, ok, err := Dispatch(ctx, c.colony, cmd)
	f := Frame{Kind: FrameReply, Type: cmd.Type, OK: ok, Payload: payload}
	if err != nil {
		f.Error = err.Error()
		c.hub.logger.Debug("Command failed", zap.String("command", cmd.Type), zap.Error(err))
	}
	c.reply(f)
}

// reply sends f to this client only.
func (c *Client) reply(f Frame) {
	f.Timestamp = c.hub.now().UnixMilli()
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	if !c.trySend(payload) {
		c.hub.metrics.RecordWSError()
	}
}

// trySend queues b without blocking. It fails once the client is closed
// or its buffer is full.
func (c *Client) trySend(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
