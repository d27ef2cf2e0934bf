package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/services"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

type fakeController struct {
	mu     sync.Mutex
	calls  []string
	layout domain.LayoutMode
	pinned domain.UID
	chat   string
	share  domain.ScreenShareOptions
	state  services.State
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Snapshot() services.State { return f.state }

func (f *fakeController) ToggleMic(context.Context) (bool, error) {
	f.record("toggle_mic")
	return true, nil
}

func (f *fakeController) ToggleCam(context.Context) (bool, error) {
	f.record("toggle_cam")
	return true, nil
}

func (f *fakeController) StartScreenShare(_ context.Context, opts domain.ScreenShareOptions) error {
	f.mu.Lock()
	f.share = opts
	f.mu.Unlock()
	f.record("start_screen_share")
	return nil
}

func (f *fakeController) StopScreenShare(context.Context) error {
	f.record("stop_screen_share")
	return nil
}

func (f *fakeController) Leave(context.Context) error {
	f.record("leave")
	return nil
}

func (f *fakeController) SendChatMessage(_ context.Context, content, _ string) error {
	f.mu.Lock()
	f.chat = content
	f.mu.Unlock()
	f.record("send_chat")
	return nil
}

func (f *fakeController) RaiseHand(context.Context) error {
	f.record("raise_hand")
	return apperrors.NewNotSupportedError("hand_raise")
}

func (f *fakeController) LowerHand(context.Context) error {
	f.record("lower_hand")
	return nil
}

func (f *fakeController) SetLayoutMode(mode domain.LayoutMode) error {
	f.mu.Lock()
	f.layout = mode
	f.mu.Unlock()
	f.record("set_layout")
	return nil
}

func (f *fakeController) PinParticipant(uid domain.UID) {
	f.mu.Lock()
	f.pinned = uid
	f.mu.Unlock()
	f.record("pin")
}

func (f *fakeController) OpenChat()  { f.record("open_chat") }
func (f *fakeController) CloseChat() { f.record("close_chat") }

type harness struct {
	bus    *events.Bus
	store  *fakeController
	bridge *EventBridge
	url    string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, _ := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()

	bus := events.NewBus(logger)
	store := &fakeController{state: services.State{CallState: domain.CallStateInCall}}
	bridge := NewEventBridge(bus, store, opts, logger)

	r := gin.New()
	r.GET("/ws", bridge.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		bridge.Close()
		srv.Close()
	})

	return &harness{
		bus:    bus,
		store:  store,
		bridge: bridge,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Code    string          `json:"code"`
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, typ, id string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": typ, "id": id}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func TestEventBridge_SendsStateThenEvents(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	conn := h.dial(t)

	first := read(t, conn)
	assert.Equal(t, "state", first.Type)
	var state services.State
	require.NoError(t, json.Unmarshal(first.Payload, &state))
	assert.Equal(t, domain.CallStateInCall, state.CallState)

	require.Eventually(t, func() bool { return h.bridge.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
	h.bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "2", DisplayName: "Bob"}})

	ev := read(t, conn)
	assert.Equal(t, string(events.NameParticipantJoined), ev.Type)
	assert.Contains(t, string(ev.Payload), `"displayName":"Bob"`)
}

func TestEventBridge_CommandsReachStore(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	conn := h.dial(t)
	read(t, conn)

	commands := []struct {
		typ     string
		payload interface{}
	}{
		{"toggle_mic", nil},
		{"toggle_cam", nil},
		{"start_screen_share", ScreenSharePayload{WithAudio: true}},
		{"stop_screen_share", nil},
		{"send_chat", ChatPayload{Content: "hello"}},
		{"lower_hand", nil},
		{"set_layout", LayoutPayload{Mode: domain.LayoutSidebar}},
		{"pin", PinPayload{UID: "7"}},
		{"open_chat", nil},
		{"close_chat", nil},
		{"leave", nil},
	}
	for i, cmd := range commands {
		id := string(rune('a' + i))
		send(t, conn, cmd.typ, id, cmd.payload)
		ack := read(t, conn)
		assert.Equal(t, "ack", ack.Type, cmd.typ)
		assert.Equal(t, id, ack.ID)
	}

	want := make([]string, 0, len(commands))
	for _, cmd := range commands {
		want = append(want, cmd.typ)
	}
	assert.Equal(t, want, h.store.Calls())
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	assert.True(t, h.store.share.WithAudio)
	assert.Equal(t, "hello", h.store.chat)
	assert.Equal(t, domain.LayoutSidebar, h.store.layout)
	assert.Equal(t, domain.UID("7"), h.store.pinned)
}

func TestEventBridge_ErrorsCarryCodes(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	conn := h.dial(t)
	read(t, conn)

	send(t, conn, "raise_hand", "1", nil)
	reply := read(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "1", reply.ID)
	assert.Equal(t, string(apperrors.ErrCodeNotSupported), reply.Code)

	send(t, conn, "dance", "2", nil)
	reply = read(t, conn)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), reply.Code)

	send(t, conn, "send_chat", "3", ChatPayload{})
	reply = read(t, conn)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), reply.Code)

	send(t, conn, "set_layout", "4", nil)
	reply = read(t, conn)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), reply.Code)
}

func TestEventBridge_RateLimitsCommands(t *testing.T) {
	opts := DefaultOptions()
	opts.MessagesPerSecond = 0.001
	opts.Burst = 1
	h := newHarness(t, opts)
	conn := h.dial(t)
	read(t, conn)

	send(t, conn, "toggle_mic", "1", nil)
	assert.Equal(t, "ack", read(t, conn).Type)

	send(t, conn, "toggle_mic", "2", nil)
	reply := read(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, string(apperrors.ErrCodeRateLimit), reply.Code)
	assert.Equal(t, []string{"toggle_mic"}, h.store.Calls())
}

func TestEventBridge_DisconnectRemovesClient(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	conn := h.dial(t)
	read(t, conn)
	require.Eventually(t, func() bool { return h.bridge.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.bridge.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	h.bus.Emit(events.LayoutChanged{Mode: domain.LayoutGrid})
}

func TestEventBridge_CloseDetachesFromBus(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	require.Equal(t, 1, h.bus.ListenerCount(events.NameToast))

	h.bridge.Close()
	assert.Zero(t, h.bus.ListenerCount(events.NameToast))
}
