package router_test

import (
	"bytes"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// TestRealtimeDeliveryP95Under250ms measures the time from a committed REST
// send to the matching websocket frame in the recipient's inbox room.
func TestRealtimeDeliveryP95Under250ms(t *testing.T) {
	if testing.Short() {
		t.Skip("latency measurement skipped in short mode")
	}

	app := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	base := ln.Addr().String()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+base+"/api/v2/realtime/ws?access_token="+tokenFor(t, "i1", "instructor"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"event": realtime.EventJoinInstructorRoom}))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ack realtime.Envelope
	require.NoError(t, ws.ReadJSON(&ack))
	require.Equal(t, realtime.EventJoined, ack.Event)

	client := &http.Client{Timeout: 5 * time.Second}
	token := tokenFor(t, "s1", "student")
	rounds := 60
	durations := make([]time.Duration, 0, rounds)

	for i := 0; i < rounds; i++ {
		payload, err := json.Marshal(dto.ChatSendRequest{CourseID: "C123", RecipientID: "i1", Content: "ping"})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, "http://"+base+"/api/v2/chat/messages", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		start := time.Now()
		resp, err := client.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var envelope realtime.Envelope
		require.NoError(t, ws.ReadJSON(&envelope))
		require.Equal(t, realtime.EventNewMessage, envelope.Event)
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)
	require.LessOrEqual(t, p95, 250*time.Millisecond, "websocket delivery P95 %s", p95)
}

func percentile(values []time.Duration, pct float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(math.Ceil(pct*float64(len(values)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}
