package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradesentry/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already gates /ws with the auth middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var streamedTopics = []string{
	events.TopicPriceTick,
	events.TopicTradeOpened,
	events.TopicTradeClosed,
	events.TopicTradeBlock,
	events.TopicRiskAlert,
}

type wsEnvelope struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// handleWebsocket streams bus events to one client until it goes away.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("api: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	merged := make(chan wsEnvelope, 256)
	done := make(chan struct{})
	for _, topic := range streamedTopics {
		ch, unsubscribe := s.bus.Subscribe(topic)
		defer unsubscribe()
		go func(topic string, ch <-chan any) {
			for event := range ch {
				select {
				case merged <- wsEnvelope{Topic: topic, Data: event}:
				case <-done:
					return
				default:
				}
			}
		}(topic, ch)
	}

	// Reader only consumes control frames; a read error means the
	// client is gone.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case env := <-merged:
			payload, err := json.Marshal(env)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
