// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rfid-service/internal/model"
	"rfid-service/internal/service"
	"rfid-service/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketHandler streams live tag reads to WebSocket clients
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	readerService *service.ReaderService
	logger        *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(readerService *service.ReaderService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
		readerService: readerService,
		logger:        utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/tags", h.HandleTagStream)
}

// tagStreamMessage is one frame sent to a stream client
type tagStreamMessage struct {
	Type      string           `json:"type"`
	Tag       *model.TagRecord `json:"tag,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// HandleTagStream upgrades the connection and relays live tag reads
func (h *WebSocketHandler) HandleTagStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	tags, unsubscribe := h.readerService.Subscribe()

	h.logger.Info("Tag stream client connected",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	closed := make(chan struct{})
	go h.readPump(conn, clientID, closed)
	h.writePump(conn, clientID, tags, closed)

	unsubscribe()
	conn.Close()
	h.logger.Info("Tag stream client disconnected", zap.String("client_id", clientID))
}

// readPump drains client messages so control frames are processed, and
// signals when the client goes away.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, clientID string, closed chan struct{}) {
	defer close(closed)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", clientID),
				)
			}
			return
		}
	}
}

// writePump relays tags to the client and keeps the connection alive
func (h *WebSocketHandler) writePump(conn *websocket.Conn, clientID string, tags <-chan *model.TagRecord, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case tag, ok := <-tags:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(tagStreamMessage{
				Type:      "tag",
				Tag:       tag,
				Timestamp: time.Now(),
			})
			if err != nil {
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", clientID),
				)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}
