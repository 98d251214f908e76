package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricochet1k/wamux/internal/domain"
	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

func dialRealtime(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial realtime websocket")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtimeTypes.ServerEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtimeTypes.ServerEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func decodePayload[T any](t *testing.T, env realtimeTypes.ServerEnvelope) T {
	t.Helper()
	data, err := json.Marshal(env.Payload)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func subscribe(t *testing.T, conn *websocket.Conn, id string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(realtimeTypes.ClientEnvelope{
		Type: realtimeTypes.ClientMessageTypeSubscribe,
		ID:   id,
	}))
}

func TestRealtimeWebSocket_SubscribeReplaysCurrentState(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router())
	defer srv.Close()

	require.Equal(t, http.StatusOK, doJSON(t, env.router(), http.MethodPost, "/session/a1/start", nil).Code)
	env.engine.conn("a1").sink.OnConnected("15550001111:7@s.whatsapp.net")
	// Let the bridge flush the live events before joining.
	time.Sleep(50 * time.Millisecond)

	conn := dialRealtime(t, srv)
	subscribe(t, conn, "a1")

	msg := readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeUpdate, msg.Type)
	update := decodePayload[realtimeTypes.SessionUpdate](t, msg)
	assert.Equal(t, "a1", update.ID)
	assert.Equal(t, "open", update.Status)
	require.NotNil(t, update.Me)
	assert.Equal(t, "15550001111:7@s.whatsapp.net", *update.Me)

	msg = readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeQR, msg.Type)
	assert.Nil(t, decodePayload[realtimeTypes.SessionQR](t, msg).DataURL)
}

func TestRealtimeWebSocket_LiveEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router())
	defer srv.Close()
	env.supervisor.AutoReplySwitch().Pause()

	conn := dialRealtime(t, srv)

	// Unknown sessions are joined without a replay.
	subscribe(t, conn, "a1")
	require.NoError(t, conn.WriteJSON(realtimeTypes.ClientEnvelope{Type: realtimeTypes.ClientMessageTypePing}))
	require.Equal(t, realtimeTypes.ServerMessageTypePong, readEnvelope(t, conn).Type)

	require.Equal(t, http.StatusOK, doJSON(t, env.router(), http.MethodPost, "/session/a1/start", nil).Code)

	msg := readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeUpdate, msg.Type)
	assert.Equal(t, "connecting", decodePayload[realtimeTypes.SessionUpdate](t, msg).Status)

	sink := env.engine.conn("a1").sink
	sink.OnChallenge("2@ref")

	msg = readEnvelope(t, conn)
	assert.Equal(t, "qr", decodePayload[realtimeTypes.SessionUpdate](t, msg).Status)
	msg = readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeQR, msg.Type)
	qr := decodePayload[realtimeTypes.SessionQR](t, msg)
	require.NotNil(t, qr.DataURL)
	assert.Equal(t, "data:image/png;base64,2@ref", *qr.DataURL)

	sink.OnConnected("15550001111:7@s.whatsapp.net")
	msg = readEnvelope(t, conn)
	assert.Equal(t, "open", decodePayload[realtimeTypes.SessionUpdate](t, msg).Status)
	msg = readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeQR, msg.Type)
	assert.Nil(t, decodePayload[realtimeTypes.SessionQR](t, msg).DataURL)

	sink.OnMessages([]domain.InboundMessage{{
		Key:     domain.MessageKey{RemoteJID: "1555@s.whatsapp.net", ID: "M1"},
		Sender:  "1555@s.whatsapp.net",
		Content: domain.TextContent{Text: "hello"},
	}})
	msg = readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeMessage, msg.Type)
	payload := decodePayload[realtimeTypes.SessionMessage](t, msg)
	assert.Equal(t, "a1", payload.ID)
	assert.Equal(t, "M1", payload.Message.Key.ID)
	require.NotNil(t, payload.Message.Text)
	assert.Equal(t, "hello", *payload.Message.Text)
}

func TestRealtimeWebSocket_OnlySubscribedSessions(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router())
	defer srv.Close()

	conn := dialRealtime(t, srv)
	subscribe(t, conn, "b2")
	require.NoError(t, conn.WriteJSON(realtimeTypes.ClientEnvelope{Type: realtimeTypes.ClientMessageTypePing}))
	require.Equal(t, realtimeTypes.ServerMessageTypePong, readEnvelope(t, conn).Type)

	require.Equal(t, http.StatusOK, doJSON(t, env.router(), http.MethodPost, "/session/a1/start", nil).Code)
	require.Equal(t, http.StatusOK, doJSON(t, env.router(), http.MethodPost, "/session/b2/start", nil).Code)

	msg := readEnvelope(t, conn)
	require.Equal(t, realtimeTypes.ServerMessageTypeUpdate, msg.Type)
	assert.Equal(t, "b2", decodePayload[realtimeTypes.SessionUpdate](t, msg).ID)

	require.NoError(t, conn.WriteJSON(realtimeTypes.ClientEnvelope{Type: realtimeTypes.ClientMessageTypeUnsubscribe, ID: "b2"}))
	require.NoError(t, conn.WriteJSON(realtimeTypes.ClientEnvelope{Type: realtimeTypes.ClientMessageTypePing}))
	require.Equal(t, realtimeTypes.ServerMessageTypePong, readEnvelope(t, conn).Type)

	env.engine.conn("b2").sink.OnChallenge("2@ref")
	require.NoError(t, conn.WriteJSON(realtimeTypes.ClientEnvelope{Type: realtimeTypes.ClientMessageTypePing}))
	require.Equal(t, realtimeTypes.ServerMessageTypePong, readEnvelope(t, conn).Type)
}

func TestRealtimeWebSocket_StatusSurvivesBusySession(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router())
	defer srv.Close()
	env.supervisor.AutoReplySwitch().Pause()

	for _, id := range []string{"a1", "b2"} {
		require.Equal(t, http.StatusOK, doJSON(t, env.router(), http.MethodPost, "/session/"+id+"/start", nil).Code)
		env.engine.conn(id).sink.OnConnected("15550001111:7@s.whatsapp.net")
	}
	time.Sleep(50 * time.Millisecond)

	conn := dialRealtime(t, srv)
	subscribe(t, conn, "b2")
	require.Equal(t, realtimeTypes.ServerMessageTypeUpdate, readEnvelope(t, conn).Type)
	require.Equal(t, realtimeTypes.ServerMessageTypeQR, readEnvelope(t, conn).Type)

	batch := make([]domain.InboundMessage, 300)
	for i := range batch {
		batch[i] = domain.InboundMessage{
			Key:     domain.MessageKey{RemoteJID: "1555@s.whatsapp.net", ID: fmt.Sprintf("M%d", i)},
			Sender:  "1555@s.whatsapp.net",
			Content: domain.TextContent{Text: "hi"},
		}
	}
	env.engine.conn("a1").sink.OnMessages(batch)
	env.engine.conn("b2").sink.OnDisconnected(domain.DisconnectNetwork)

	for {
		msg := readEnvelope(t, conn)
		if msg.Type != realtimeTypes.ServerMessageTypeUpdate {
			continue
		}
		update := decodePayload[realtimeTypes.SessionUpdate](t, msg)
		assert.Equal(t, "b2", update.ID)
		assert.Equal(t, "closed-retrying", update.Status)
		return
	}
}

func TestRealtimeWebSocket_RejectsBadMessages(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router())
	defer srv.Close()

	conn := dialRealtime(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readEnvelope(t, conn)
	assert.Equal(t, realtimeTypes.ServerMessageTypeError, msg.Type)
	assert.Equal(t, "invalid message", msg.Message)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "session:teleport"}))
	msg = readEnvelope(t, conn)
	assert.Equal(t, realtimeTypes.ServerMessageTypeError, msg.Type)

	subscribe(t, conn, "")
	msg = readEnvelope(t, conn)
	assert.Equal(t, realtimeTypes.ServerMessageTypeError, msg.Type)
}
