package webrtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/events"
)

func newTestManager(t *testing.T, streams []string, bus events.EventBus) (*Manager, *fakeFactory) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Viewer.Streams = streams
	cfg.WebRTC.GatherTimeout = 200 * time.Millisecond
	cfg.WebRTC.RetryDelay = time.Hour

	factory := newFakeFactory()
	m, err := NewManager(context.Background(), &ManagerConfig{
		Config:    cfg,
		Signaling: newFakeSignaling(),
		Factory:   factory,
		Bus:       bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, factory
}

func TestManager_StartsConfiguredStreams(t *testing.T) {
	m, factory := newTestManager(t, []string{"cam1", "cam2"}, nil)
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsRunning())

	factory.wait(t)
	factory.wait(t)

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "cam1", statuses[0].StreamID)
	assert.Equal(t, "cam2", statuses[1].StreamID)

	resp := m.Streams()
	assert.True(t, resp.Available)
	assert.Empty(t, resp.Message)

	stats := m.GetStats()
	assert.Equal(t, 2, stats["streams"])
}

func TestManager_NoStreams(t *testing.T) {
	m, factory := newTestManager(t, nil, nil)
	require.NoError(t, m.Start(context.Background()))

	resp := m.Streams()
	assert.False(t, resp.Available)
	assert.Equal(t, "no streams available", resp.Message)
	assert.Empty(t, resp.Streams)
	assert.Zero(t, factory.count())

	health, err := m.HealthCheck()
	require.NoError(t, err)
	assert.Equal(t, 0, health["streams"])
}

func TestManager_HealthCheckRequiresRunning(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)
	_, err := m.HealthCheck()
	assert.ErrorIs(t, err, ErrManagerNotRunning)
}

func TestManager_StreamLifecycle(t *testing.T) {
	m, factory := newTestManager(t, nil, nil)

	_, err := m.StartStream("cam")
	assert.ErrorIs(t, err, ErrManagerNotRunning)

	require.NoError(t, m.Start(context.Background()))

	sup, err := m.StartStream("cam")
	require.NoError(t, err)
	pc := factory.wait(t)

	_, err = m.StartStream("cam")
	assert.ErrorIs(t, err, ErrStreamExists)
	_, err = m.StartStream(" ")
	assert.ErrorIs(t, err, ErrInvalidStreamID)

	require.NoError(t, m.Reconnect("cam"))
	factory.wait(t)
	assert.Equal(t, 1, pc.closes())

	require.NoError(t, m.StopStream("cam"))
	assert.True(t, sup.Disposed())
	assert.ErrorIs(t, m.StopStream("cam"), ErrStreamNotFound)
	assert.ErrorIs(t, m.Reconnect("cam"), ErrStreamNotFound)

	_, err = m.Status("cam")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestManager_StopDisposesAll(t *testing.T) {
	m, factory := newTestManager(t, []string{"a", "b", "c"}, nil)
	require.NoError(t, m.Start(context.Background()))

	pcs := []*fakePC{factory.wait(t), factory.wait(t), factory.wait(t)}
	sups := make([]*Supervisor, 0, 3)
	for _, id := range []string{"a", "b", "c"} {
		sup, ok := m.Supervisor(id)
		require.True(t, ok)
		sups = append(sups, sup)
	}

	require.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.IsRunning())
	for _, sup := range sups {
		assert.True(t, sup.Disposed())
	}
	for _, pc := range pcs {
		require.Eventually(t, func() bool { return pc.closes() == 1 }, time.Second, 5*time.Millisecond)
	}
	assert.Empty(t, m.Statuses())
	require.NoError(t, m.Stop(context.Background()))
}

type eventCollector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *eventCollector) Handle(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *eventCollector) has(eventType events.EventType, match func(events.Event) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Type() == eventType && (match == nil || match(ev)) {
			return true
		}
	}
	return false
}

func TestManager_PublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	require.NoError(t, bus.Start())
	defer bus.Stop()

	collector := &eventCollector{}
	_, err := bus.Subscribe(events.AllEvents, collector)
	require.NoError(t, err)

	m, factory := newTestManager(t, []string{"cam"}, bus)
	require.NoError(t, m.Start(context.Background()))
	pc := factory.wait(t)
	waitForRemote(t, pc)

	pc.fireICE(webrtc.ICEConnectionStateConnected)
	track := newFakeTrack("v0", webrtc.RTPCodecTypeVideo)
	defer close(track.packets)
	pc.fireTrack(track)
	pc.fireICE(webrtc.ICEConnectionStateFailed)

	wait := func(eventType events.EventType, match func(events.Event) bool) {
		require.Eventually(t, func() bool { return collector.has(eventType, match) }, time.Second, 5*time.Millisecond, string(eventType))
	}
	wait(events.EventStreamStarted, nil)
	wait(events.EventStatusChanged, func(ev events.Event) bool {
		st, ok := ev.Data()["status"].(StreamStatus)
		return ok && st.Status == StatusConnected
	})
	wait(events.EventTrackAdded, func(ev events.Event) bool { return ev.Data()["kind"] == "video" })
	wait(events.EventRetryScheduled, nil)

	require.NoError(t, m.StopStream("cam"))
	wait(events.EventStreamStopped, nil)
}

func newRoutedServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	router := mux.NewRouter()
	require.NoError(t, m.SetupRoutes(router))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestHandlers_StreamAPI(t *testing.T) {
	m, factory := newTestManager(t, []string{"cam1"}, nil)
	require.NoError(t, m.Start(context.Background()))
	factory.wait(t)
	server := newRoutedServer(t, m)

	resp, err := http.Get(server.URL + "/api/streams")
	require.NoError(t, err)
	var list StreamsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.True(t, list.Available)
	require.Len(t, list.Streams, 1)
	assert.Equal(t, "cam1", list.Streams[0].StreamID)

	resp, err = http.Post(server.URL+"/api/streams/cam2", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	factory.wait(t)

	resp, err = http.Post(server.URL+"/api/streams/cam2", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/streams/cam2")
	require.NoError(t, err)
	var status StreamStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "cam2", status.StreamID)
	assert.Equal(t, 1, status.Attempts)

	resp, err = http.Post(server.URL+"/api/streams/cam2/reconnect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/streams/cam2", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/streams/cam2")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlers_EmptyList(t *testing.T) {
	m, _ := newTestManager(t, nil, nil)
	require.NoError(t, m.Start(context.Background()))
	server := newRoutedServer(t, m)

	resp, err := http.Get(server.URL + "/api/streams")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["available"])
	assert.Equal(t, "no streams available", body["message"])
	assert.Equal(t, []any{}, body["streams"])
}

func TestHandlers_WebSocketPush(t *testing.T) {
	bus := events.NewEventBus()
	require.NoError(t, bus.Start())
	defer bus.Stop()

	m, factory := newTestManager(t, []string{"cam"}, bus)
	require.NoError(t, m.Start(context.Background()))
	pc := factory.wait(t)
	waitForRemote(t, pc)
	server := newRoutedServer(t, m)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/streams/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first["type"])
	assert.Equal(t, true, first["available"])

	require.Eventually(t, func() bool { return bus.GetHandlerCount(events.AllEvents) == 1 }, time.Second, 5*time.Millisecond)
	pc.fireICE(webrtc.ICEConnectionStateConnected)

	for {
		var msg events.EventEnvelope
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != events.EventStatusChanged {
			continue
		}
		status, ok := msg.Data["status"].(map[string]any)
		require.True(t, ok)
		if status["status"] == string(StatusConnected) {
			assert.Equal(t, "cam", msg.StreamID)
			break
		}
	}
}
