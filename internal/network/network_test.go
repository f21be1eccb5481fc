package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/colony/server/internal/domain/colony"
	"github.com/MRamiBalles/colony/server/internal/domain/save"
	"github.com/MRamiBalles/colony/server/internal/engine"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/infra/storage"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/presentation"
)

type fakeColony struct {
	mu      sync.Mutex
	clicks  []string
	paused  bool
	saveErr error
}

func (f *fakeColony) Click(personID, actionID string) (bool, error) {
	if personID != "p1" {
		return false, engine.ErrUnknownPerson
	}
	f.mu.Lock()
	f.clicks = append(f.clicks, actionID)
	f.mu.Unlock()
	return true, nil
}
func (f *fakeColony) TriggerIncident(id string) (bool, error) { return id == "storm", nil }
func (f *fakeColony) Confirm(id string, accept bool) (bool, error) {
	return accept, nil
}
func (f *fakeColony) CancelIncident(string) (bool, error) { return false, nil }
func (f *fakeColony) Pause() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.paused
	f.paused = true
	return !was
}
func (f *fakeColony) Resume() bool               { return true }
func (f *fakeColony) Key(int)                    {}
func (f *fakeColony) Save(context.Context) error { return f.saveErr }
func (f *fakeColony) Recruit(_ context.Context, n int) <-chan engine.RecruitResult {
	ch := make(chan engine.RecruitResult, 1)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "new"
	}
	ch <- engine.RecruitResult{People: ids}
	return ch
}
func (f *fakeColony) View() engine.ColonyView { return engine.ColonyView{ID: "c1", Hours: 2} }

func TestDispatchRoutesCommands(t *testing.T) {
	ctx := context.Background()
	c := &fakeColony{}

	_, ok, err := Dispatch(ctx, c, Command{Type: CmdClick, Person: "p1", Action: "chop"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"chop"}, c.clicks)

	_, ok, _ = Dispatch(ctx, c, Command{Type: CmdDecline, Incident: "storm"})
	assert.False(t, ok)

	payload, ok, err := Dispatch(ctx, c, Command{Type: CmdRecruit, Count: 2})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, payload, 2)

	_, _, err = Dispatch(ctx, c, Command{Type: CmdRecruit, Count: 50})
	assert.True(t, errors.Is(err, ErrTooManyRecruits))

	_, _, err = Dispatch(ctx, c, Command{Type: "DANCE"})
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func newAPI(t *testing.T, c Colony) (*CommandAPI, *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(logger.NewNop(), nil, 2, 16)
	go hub.Run(ctx)
	return NewCommandAPI(ctx, c, hub, logger.NewNop(), APIOptions{MessagesPerSecond: 100}), hub
}

func TestHandleCommandStatusCodes(t *testing.T) {
	api, _ := newAPI(t, &fakeColony{saveErr: engine.ErrNoStore})
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	cases := []struct {
		body   string
		status int
	}{
		{`{"type":"CLICK","person":"p1","action":"chop"}`, http.StatusOK},
		{`{"type":"CLICK","person":"p9","action":"chop"}`, http.StatusNotFound},
		{`{"type":"SAVE"}`, http.StatusNotImplemented},
		{`{"type":"DANCE"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(tc.body)))
		assert.Equal(t, tc.status, rec.Code, tc.body)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/colony", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view engine.ColonyView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "c1", view.ID)
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	// several frames may share one websocket message
	line := bytes.SplitN(data, []byte{'\n'}, 2)[0]
	var f Frame
	require.NoError(t, json.Unmarshal(line, &f))
	return f
}

func TestWebsocketSessionAndBroadcast(t *testing.T) {
	c := &fakeColony{}
	api, hub := newAPI(t, c)
	srv := httptest.NewServer(http.HandlerFunc(api.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	assert.Equal(t, FrameView, first.Kind)

	require.NoError(t, conn.WriteJSON(Command{Type: CmdClick, Person: "p1", Action: "chop"}))
	reply := readFrame(t, conn)
	assert.Equal(t, FrameReply, reply.Kind)
	assert.True(t, reply.OK)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	hub.SetFlag(presentation.ResourceHandle("wood"), presentation.FlagWarning, true, 0)
	flag := readFrame(t, conn)
	assert.Equal(t, FrameFlag, flag.Kind)
	assert.Equal(t, presentation.FlagWarning, flag.Flag)
}

func TestHubMirrorsBusMessages(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(logger.NewNop(), nil, 0, 4)
	hub.Follow(bus)

	require.NoError(t, bus.Notify(events.MsgWin, nil))
	select {
	case raw := <-hub.broadcast:
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		assert.Equal(t, FrameMessage, f.Kind)
		assert.Equal(t, "WIN", f.Type)
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestHubDropsWhenQueueIsFull(t *testing.T) {
	hub := NewHub(logger.NewNop(), nil, 0, 1)
	hub.Show("a")
	hub.Show("b")
	assert.Len(t, hub.broadcast, 1)
}

type fakeJournal struct{ entries []events.Entry }

func (f fakeJournal) Journal() []events.Entry { return f.entries }
func (f fakeJournal) Snapshot() save.Snapshot {
	return save.Snapshot{Version: save.Version, ID: "s1", Colony: colony.Colony{ID: "c1"}}
}

type fakeRecap struct{ since time.Time }

func (f *fakeRecap) Since(_ context.Context, _ string, t time.Time) ([]storage.RecapEvent, error) {
	f.since = t
	return []storage.RecapEvent{{Summary: "Ada arrived."}}, nil
}
func (f *fakeRecap) ForActor(context.Context, string, string) ([]storage.RecapEvent, error) {
	return nil, errors.New("boom")
}

func TestJournalFiltersAndExports(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := fakeJournal{entries: []events.Entry{
		{ID: "1", Timestamp: base, TypeName: "ARRIVAL", ActorID: "p1"},
		{ID: "2", Timestamp: base.Add(time.Minute), TypeName: "CLICK", ActorID: "p1"},
		{ID: "3", Timestamp: base.Add(2 * time.Minute), TypeName: "CLICK", ActorID: "p2"},
	}}
	recap := &fakeRecap{}
	mux := http.NewServeMux()
	NewJournalHandler(src, recap, "current", logger.NewNop()).RegisterRoutes(mux)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		return rec
	}

	var resp JournalResponse
	require.NoError(t, json.NewDecoder(get("/api/journal?type=CLICK&actor=p1").Body).Decode(&resp))
	assert.Equal(t, 1, resp.TotalEvents)
	assert.Equal(t, "type=CLICK actor=p1", resp.FilteredBy)

	require.NoError(t, json.NewDecoder(get("/api/journal?since=2026-03-01T12:00:30Z").Body).Decode(&resp))
	assert.Equal(t, 2, resp.TotalEvents)
	assert.Equal(t, http.StatusBadRequest, get("/api/journal?since=yesterday").Code)

	var stats struct{ Stats map[string]int }
	require.NoError(t, json.NewDecoder(get("/api/journal/stats").Body).Decode(&stats))
	assert.Equal(t, 2, stats.Stats["CLICK"])
	assert.Equal(t, 3, stats.Stats["total_events"])

	assert.Equal(t, http.StatusOK, get("/api/recap").Code)
	assert.True(t, recap.since.IsZero())
	assert.Equal(t, http.StatusInternalServerError, get("/api/recap?actor=p1").Code)

	rec := get("/api/save/export")
	require.Equal(t, http.StatusOK, rec.Code)
	h, snap, err := storage.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "c1", h.ColonyID)
	assert.Equal(t, "s1", snap.ID)
}

func TestRecapWithoutStore(t *testing.T) {
	mux := http.NewServeMux()
	NewJournalHandler(fakeJournal{}, nil, "current", logger.NewNop()).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recap", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
