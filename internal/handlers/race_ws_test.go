package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/typerace/internal/race"
	"github.com/jason-s-yu/typerace/internal/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ body string }

func (s staticSource) RandomPassage(ctx context.Context) (text.Passage, error) {
	return text.Passage{Title: "Static", Body: s.body}, nil
}

type wireEvent struct {
	Type race.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := quietLogger()
	hub := NewHub(logger)
	sess := race.NewSession(hub, staticSource{body: "Short race text."}, logger)
	sess.MinTextLength = 5
	sess.Tick = time.Millisecond

	srv := httptest.NewServer(RaceWSHandler(logger, hub, sess))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{raceSubprotocol}})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, msg race.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

// readUntil reads events until one of type want arrives and returns it.
func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, want race.EventType) wireEvent {
	t.Helper()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var ev wireEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == want {
			return ev
		}
	}
}

func TestRaceWSCreateJoinAndRace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t)

	alice := dial(t, ctx, srv)
	var hello ConnectedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, alice, EventConnected).Data, &hello))
	assert.NotEmpty(t, hello.ConnID)

	send(t, ctx, alice, race.ClientMessage{Type: race.MsgCreate, Name: "alice"})
	var gid race.GameIDPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, alice, race.EventGameID).Data, &gid))
	require.NotEmpty(t, gid.ID)

	bob := dial(t, ctx, srv)
	send(t, ctx, bob, race.ClientMessage{Type: race.MsgJoin, Name: "bob", Room: gid.ID})
	readUntil(t, ctx, bob, race.EventAllowedToJoin)

	var snap struct {
		Users map[string]string `json:"user_map"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, alice, race.EventUserConnect).Data, &snap))
	assert.Len(t, snap.Users, 2)
	assert.Equal(t, "alice", snap.Users[hello.ConnID])

	send(t, ctx, alice, race.ClientMessage{Type: race.MsgGenerateGameText})
	readUntil(t, ctx, alice, race.EventCreatedGameText)
	send(t, ctx, alice, race.ClientMessage{Type: race.MsgStartGame})

	var start race.StartGamePayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, bob, race.EventStartGame).Data, &start))
	assert.Equal(t, "Short race text.", start.Text)

	send(t, ctx, alice, race.ClientMessage{Type: race.MsgPushCharacter, Char: "S"})
	var change race.CharacterChangePayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, bob, race.EventCharacterChange).Data, &change))
	assert.Equal(t, race.CharacterChangePayload{ConnID: hello.ConnID, NewCorrectLen: 1}, change)
}

func TestRaceWSInvalidJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t)

	c := dial(t, ctx, srv)
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	var payload race.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, race.EventError).Data, &payload))
	assert.Equal(t, "Invalid JSON format", payload.Message)
}

func TestRaceWSDisconnectLeavesRoom(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t)

	alice := dial(t, ctx, srv)
	send(t, ctx, alice, race.ClientMessage{Type: race.MsgCreate, Name: "alice"})
	var gid race.GameIDPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, alice, race.EventGameID).Data, &gid))

	bob := dial(t, ctx, srv)
	send(t, ctx, bob, race.ClientMessage{Type: race.MsgJoin, Name: "bob", Room: gid.ID})
	readUntil(t, ctx, bob, race.EventAllowedToJoin)
	readUntil(t, ctx, alice, race.EventUserConnect)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))

	var snap struct {
		Users map[string]string `json:"user_map"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, alice, race.EventUserConnect).Data, &snap))
	assert.Len(t, snap.Users, 1)
}

func TestRaceWSRequiresSubprotocol(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}
