package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamHandler exposes a job's run events over a websocket.
type StreamHandler struct {
	backtestService *service.BacktestService
	upgrader        websocket.Upgrader
	logger          *zap.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(backtestService *service.BacktestService, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		backtestService: backtestService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// StreamBacktestEvents upgrades the connection and relays the job's
// progress and position events until the client disconnects or the
// subscription ends.
func (h *StreamHandler) StreamBacktestEvents(c *gin.Context) {
	id := c.Param("id")
	eventCh, unsubscribe, err := h.backtestService.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		h.logger.Warn("Failed to upgrade websocket",
			zap.Error(err),
			zap.String("job_id", id))
		return
	}

	go h.writePump(conn, eventCh, unsubscribe, id)
	go h.readPump(conn, id)
}

// writePump pushes events and pings to the client.
func (h *StreamHandler) writePump(conn *websocket.Conn, eventCh <-chan service.StreamEvent, unsubscribe func(), id string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("Websocket write failed",
					zap.Error(err),
					zap.String("job_id", id))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so close messages are processed.
func (h *StreamHandler) readPump(conn *websocket.Conn, id string) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Debug("Websocket closed",
				zap.Error(err),
				zap.String("job_id", id))
			return
		}
	}
}
