package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Websocket event types.
const (
	eventResult = "result"
	eventError  = "error"
)

// wsClient wraps a websocket connection with a write deadline.
type wsClient struct {
	conn *websocket.Conn
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}
}

// handlePredictStream answers each form submitted over the socket with one event.
// Messages on a connection are processed one at a time, in order.
func (s *Server) handlePredictStream(c *gin.Context) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}
	client := &wsClient{conn: conn}
	remote := conn.RemoteAddr().String()
	s.metrics.sockets.Inc()
	logrus.WithField("remote", remote).Info("prediction websocket connected")
	defer func() {
		s.metrics.sockets.Dec()
		_ = conn.Close()
	}()

	ctx := c.Request.Context()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithField("remote", remote).Info("prediction websocket closed")
			} else {
				logrus.WithError(err).Warn("prediction websocket unexpected close")
			}
			return
		}

		id := uuid.NewString()
		event := PredictionEvent{Type: eventResult}
		var fields map[string]any
		if err := json.Unmarshal(message, &fields); err != nil {
			apiErr := &apiError{status: http.StatusBadRequest, kind: kindRequest, err: fmt.Errorf("invalid JSON message: %w", err), outcome: outcomeInvalid}
			s.metrics.observe(apiErr.outcome, 0)
			resp := apiErr.response(id)
			event = PredictionEvent{Type: eventError, Error: &resp}
		} else if resp, apiErr := s.predict(ctx, id, fields); apiErr != nil {
			errResp := apiErr.response(id)
			event = PredictionEvent{Type: eventError, Error: &errResp}
		} else {
			event.Result = &resp
		}

		event.Timestamp = time.Now().UTC()
		if err := client.writeJSON(event); err != nil {
			logrus.WithError(err).WithField("remote", remote).Warn("write prediction event")
			return
		}
	}
}
