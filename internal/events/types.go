package events

import "strconv"

// MessageType is the flat enumeration of bus messages.
type MessageType int

const (
	MsgClick MessageType = iota + 1
	MsgRefresh
	MsgGive
	MsgUse
	MsgRunsOut
	MsgLoose
	MsgLooseSomeone
	MsgUnlock
	MsgLock
	MsgBuild
	MsgEventStart
	MsgEventEnd
	MsgIncidentStart
	MsgIncidentEnd
	MsgSave
	MsgWin
	MsgLog
	MsgPause
	MsgResume
	MsgArrival
)

// KeyOffset starts the sub-range reserved for raw key codes, far enough
// from the semantic messages to never collide.
const KeyOffset MessageType = 1000

// KeyMessage returns the message type carrying the given key code.
func KeyMessage(code int) MessageType {
	return KeyOffset + MessageType(code)
}

// IsKey reports whether t is in the key sub-range.
func (t MessageType) IsKey() bool {
	return t >= KeyOffset
}

// KeyCode returns the key code of a key message.
func (t MessageType) KeyCode() int {
	return int(t - KeyOffset)
}

var typeNames = map[MessageType]string{
	MsgClick:         "CLICK",
	MsgRefresh:       "REFRESH",
	MsgGive:          "GIVE",
	MsgUse:           "USE",
	MsgRunsOut:       "RUNS_OUT",
	MsgLoose:         "LOOSE",
	MsgLooseSomeone:  "LOOSE_SOMEONE",
	MsgUnlock:        "UNLOCK",
	MsgLock:          "LOCK",
	MsgBuild:         "BUILD",
	MsgEventStart:    "EVENT_START",
	MsgEventEnd:      "EVENT_END",
	MsgIncidentStart: "INCIDENT_START",
	MsgIncidentEnd:   "INCIDENT_END",
	MsgSave:          "SAVE",
	MsgWin:           "WIN",
	MsgLog:           "LOG",
	MsgPause:         "PAUSE",
	MsgResume:        "RESUME",
	MsgArrival:       "ARRIVAL",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	if t.IsKey() {
		return "KEY_" + strconv.Itoa(t.KeyCode())
	}
	return "UNKNOWN_" + strconv.Itoa(int(t))
}

// ParseMessageType resolves a message name such as "GIVE".
func ParseMessageType(name string) (MessageType, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Payloads published by the simulation. Handlers type-switch on them.

// Amount is one resource quantity moving in or out of the ledger.
type Amount struct {
	ResourceID string  `json:"resource"`
	Quantity   float64 `json:"quantity"`
}

// ResourcePayload accompanies GIVE, USE and RUNS_OUT.
type ResourcePayload struct {
	Source  string   `json:"source"` // action, incident or "ledger"
	Amounts []Amount `json:"amounts"`
}

// ActionPayload accompanies CLICK, UNLOCK, LOCK and BUILD.
type ActionPayload struct {
	PersonID string   `json:"person"`
	ActionID string   `json:"action"`
	Targets  []string `json:"targets,omitempty"`
	Started  bool     `json:"started,omitempty"`
}

// PersonPayload accompanies LOOSE_SOMEONE and ARRIVAL.
type PersonPayload struct {
	PersonID string `json:"person"`
	Name     string `json:"name"`
}

// IncidentPayload accompanies EVENT_* and INCIDENT_* messages.
type IncidentPayload struct {
	IncidentID string `json:"incident"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty"`
}

// LogPayload is a personified chronicle line.
type LogPayload struct {
	Text string `json:"text"`
}

// TickPayload accompanies REFRESH.
type TickPayload struct {
	ElapsedMs int64   `json:"elapsed_ms"`
	Hours     float64 `json:"hours"` // colony age
}

// Types lists every semantic message type, key messages excluded.
func Types() []MessageType {
	out := make([]MessageType, 0, len(typeNames))
	for t := MsgClick; t <= MsgArrival; t++ {
		out = append(out, t)
	}
	return out
}
