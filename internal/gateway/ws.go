package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/internal/sessions"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientFrame is one message the client may send on /ws/chat (§6).
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverFrame is one message the server sends back on /ws/chat (§6).
type serverFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

func (s *Server) handleWSChat(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := sessions.Resolve("websocket", uuid.NewString(), s.AgentName)

	send := make(chan serverFrame, 16)
	done := make(chan struct{})
	go s.wsWriteLoop(conn, send, done)
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			send <- serverFrame{Type: "error", Content: "invalid frame"}
			continue
		}

		switch frame.Type {
		case "ping":
			send <- serverFrame{Type: "pong"}
		case "message":
			s.handleWSMessage(r.Context(), sessionID, frame.Text, send)
		default:
			send <- serverFrame{Type: "error", Content: "unknown frame type"}
		}
	}
}

func (s *Server) handleWSMessage(ctx context.Context, sessionID, text string, send chan<- serverFrame) {
	send <- serverFrame{Type: "typing"}

	in := InputPipeline().Run(text)
	if in.Blocked {
		s.recordGuardBlocked("input", in.Reason)
		send <- serverFrame{Type: "message", Content: fallbackReply}
		return
	}

	events := make(chan agent.StreamEvent, 32)
	go func() {
		for ev := range events {
			if ev.Text != "" {
				send <- serverFrame{Type: "token", Content: ev.Text}
			}
		}
	}()

	s.recordSessionStarted("websocket")
	defer s.recordSessionEnded("websocket")

	start := time.Now()
	s.recordLLMCall()
	reply, err := s.Loop.Run(ctx, sessionID, text, s.Loop.Router.Definitions(), events)
	close(events)
	if err != nil {
		s.recordLLMError(start, err)
		send <- serverFrame{Type: "error", Content: err.Error()}
		return
	}
	s.recordLLMSuccess(start)

	out := OutputPipeline(s.System).Run(reply)
	if out.Blocked {
		s.recordGuardBlocked("output", out.Reason)
		reply = fallbackReply
	}
	send <- serverFrame{Type: "message", Content: reply}
}

func (s *Server) wsWriteLoop(conn *websocket.Conn, send <-chan serverFrame, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame, ok := <-send:
			if !ok {
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
