package services

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellapacxx/bingo-live/models"
)

func newGatewayServer(t *testing.T, orch *GameOrchestrator, jwtSecret []byte, operators []string) (*httptest.Server, *ConnectionRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := NewConnectionRegistry()
	gateway := NewWSGateway(registry, orch, jwtSecret, operators)
	r := gin.New()
	r.GET("/ws", gateway.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestGateway_FirstMessageIsFullSnapshot(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	generateIDs(t, e, 3)
	_, err := e.orch.StartGame(ctx)
	require.NoError(t, err)

	srv, registry := newGatewayServer(t, e.orch, nil, nil)
	conn := dialWS(t, srv, "")

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, EventSnapshot, ev.Type)

	// The join payload matches the authoritative state, not a diff.
	want, err := e.orch.BuildSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev.Snapshot.Game)
	assert.Equal(t, want.Game.ID, ev.Snapshot.Game.ID)
	assert.Equal(t, models.GamePlaying, ev.Snapshot.Game.Status)
	assert.Equal(t, want.AvailableCards, ev.Snapshot.AvailableCards)
	assert.Equal(t, want.PurchasedCards, ev.Snapshot.PurchasedCards)

	assert.Equal(t, 1, registry.Count())
}

func TestGateway_IdentityAndOperatorFromToken(t *testing.T) {
	e := newTestEngine()
	secret := []byte("ws-secret")
	srv, registry := newGatewayServer(t, e.orch, secret, []string{"op-1"})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "op-1"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	op := dialWS(t, srv, "?token="+signed)
	_, _, err = op.ReadMessage()
	require.NoError(t, err)

	ops := registry.ListFilter(func(c models.Connection) bool { return c.IsOperator })
	require.Len(t, ops, 1)
	assert.Equal(t, "op-1", ops[0].Conn.Identity)

	// A garbage token downgrades to an anonymous viewer, it does not refuse
	// the feed.
	anon := dialWS(t, srv, "?token=garbage")
	_, _, err = anon.ReadMessage()
	require.NoError(t, err)

	viewers := registry.ListFilter(func(c models.Connection) bool { return !c.IsOperator })
	require.Len(t, viewers, 1)
	assert.Empty(t, viewers[0].Conn.Identity)
}

func TestSubscriber_ConcurrentDeliverAndDisconnect(t *testing.T) {
	e := newTestEngine()
	srv, registry := newGatewayServer(t, e.orch, nil, nil)
	conn := dialWS(t, srv, "")
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	subs := registry.List()
	require.Len(t, subs, 1)
	sub := subs[0]

	// Fan-out keeps delivering while the subscriber disconnects; the
	// delivery path must degrade to ErrSubscriberGone, never panic.
	var wg sync.WaitGroup
	payload := []byte(`{"type":"number_called"}`)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				sub.Deliver(payload)
			}
		}()
	}
	registry.Unregister(sub.Conn.ID)
	wg.Wait()

	assert.ErrorIs(t, sub.Deliver(payload), ErrSubscriberGone)
	assert.Zero(t, registry.Count())
}

// failingCountStore breaks snapshot assembly while leaving the rest of the
// store intact.
type failingCountStore struct {
	*MemoryStore
}

func (s *failingCountStore) CountCardsByStatus(context.Context, models.CardStatus) (int64, error) {
	return 0, NewError(CodeStorageUnavailable, "status counts unavailable")
}

func TestGateway_DropsConnectionWhenSnapshotFails(t *testing.T) {
	store := &failingCountStore{MemoryStore: NewMemoryStore(nil)}
	pool := NewCardPool(store, []byte("test-secret"))
	res := NewReservationManager(store, time.Minute)
	state := NewGameStateMachine(store, res)
	orch := NewGameOrchestrator(pool, res, state, StaticOracle{}, &capturePublisher{}, 1, time.Second)

	srv, registry := newGatewayServer(t, orch, nil, nil)
	conn := dialWS(t, srv, "")

	// No join snapshot can be built, so the connection is torn down rather
	// than left registered and silent.
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return registry.Count() == 0 }, time.Second, 10*time.Millisecond)
}
