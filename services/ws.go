package services

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to known frontend origins before exposing publicly
		return true
	},
}

// WSGateway upgrades viewers onto the live feed. Anonymous viewers are
// allowed; identity comes from an optional JWT and operator status from the
// allow-list.
type WSGateway struct {
	registry  *ConnectionRegistry
	orch      *GameOrchestrator
	jwtSecret []byte
	operators map[string]bool
}

func NewWSGateway(registry *ConnectionRegistry, orch *GameOrchestrator, jwtSecret []byte, operators []string) *WSGateway {
	allow := make(map[string]bool, len(operators))
	for _, id := range operators {
		allow[id] = true
	}
	return &WSGateway{registry: registry, orch: orch, jwtSecret: jwtSecret, operators: allow}
}

// Handle is the gin handler for GET /ws.
func (g *WSGateway) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("websocket upgrade: %v", err)
		return
	}

	identity := g.identityFromToken(c.Query("token"))
	connection := models.Connection{
		ID:         uuid.NewString(),
		Identity:   identity,
		IsOperator: identity != "" && g.operators[identity],
		Room:       "main",
		JoinedAt:   time.Now(),
	}

	sub := newWSSubscriber(connection.ID, conn, g.registry)
	g.registry.Register(connection, sub)
	go sub.writePump()
	go sub.readPump()

	logger.Infof("connection %s joined (identity=%q operator=%v, total=%d)",
		connection.ID, identity, connection.IsOperator, g.registry.Count())

	// A fresh connection gets the full current state up front, so
	// reconnecting clients never depend on event replay.
	snap, err := g.orch.BuildSnapshot(c.Request.Context())
	if err != nil {
		// Drop the connection rather than leave it registered without its
		// join snapshot; the client reconnects and tries again.
		logger.Errorf("snapshot for new connection %s: %v", connection.ID, err)
		g.registry.Unregister(connection.ID)
		return
	}
	payload, err := json.Marshal(Event{Type: EventSnapshot, Snapshot: snap})
	if err != nil {
		logger.Errorf("marshal join snapshot: %v", err)
		g.registry.Unregister(connection.ID)
		return
	}
	if err := sub.Deliver(payload); err != nil {
		g.registry.Unregister(connection.ID)
	}
}

// identityFromToken resolves the subject claim of a bearer token, or empty
// for anonymous viewers. An invalid token downgrades to anonymous rather
// than refusing the feed.
func (g *WSGateway) identityFromToken(token string) string {
	if token == "" || len(g.jwtSecret) == 0 {
		return ""
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return g.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		logger.Infof("rejecting viewer token: %v", err)
		return ""
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
