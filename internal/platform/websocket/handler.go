package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/db"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// WebSocketHandler upgrades authenticated requests and pumps events.
type WebSocketHandler struct {
	hub       *Hub
	authorize TopicAuthorizer
	upgrader  gorillawebsocket.Upgrader
	logger    zerolog.Logger
}

// NewWebSocketHandler binds a handler to hub. allowedOrigins empty or
// containing "*" accepts any origin.
func NewWebSocketHandler(hub *Hub, authorize TopicAuthorizer, allowedOrigins []string, logger zerolog.Logger) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub:       hub,
		authorize: authorize,
		logger:    logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
		},
	}
}

func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

type subscribeAck struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
	Denied []string `json:"denied,omitempty"`
}

// HandleConnect upgrades the connection and starts the read and write pumps.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// the request context, and the tenant connection pinned to it, end when
	// this handler returns
	reqCtx := c.Request().Context()
	tenant := db.TenantFromContext(reqCtx)
	ctx := auth.WithIdentity(db.WithTenant(context.Background(), tenant),
		auth.UserIDFromContext(reqCtx), auth.RoleFromContext(reqCtx))

	client := &Client{
		ID:     uuid.New().String(),
		Tenant: tenant,
		UserID: auth.UserIDFromContext(reqCtx),
		Topics: []string{},
		Send:   make(chan []byte, 256),
		ctx:    ctx,
		allow:  wsh.authorize,
	}
	wsh.hub.Register(client)

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		denied := wsh.hub.ProcessMessage(client, msg)
		if msg.Action == "subscribe" {
			ack, _ := json.Marshal(subscribeAck{Type: "subscribed", Topics: msg.Topics, Denied: denied})
			select {
			case client.Send <- ack:
			default:
			}
		}
		if len(denied) > 0 {
			wsh.logger.Warn().Str("client", client.ID).Str("user_id", client.UserID).
				Strs("topics", denied).Msg("websocket subscription denied")
		}
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
