package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleRunWebSocket streams the same progress events as the SSE endpoint
// over a websocket.
func (s *Server) handleRunWebSocket(w http.ResponseWriter, r *http.Request, runID string) {
	job, exists := s.jobManager.GetJob(runID)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	events := s.jobManager.broadcaster.Subscribe(runID)
	defer s.jobManager.broadcaster.Unsubscribe(runID, events)

	// The read pump only handles control frames and notices a closed peer.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(e ProgressEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(e)
	}

	if err := write(initialEvent(job)); err != nil {
		return
	}
	if job.State.Terminal() {
		s.closeWebSocket(conn)
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				s.closeWebSocket(conn)
				return
			}
			if err := write(e); err != nil {
				slog.Debug("Websocket write failed", "run_id", runID, "error", err)
				return
			}
			if e.State.Terminal() {
				s.closeWebSocket(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) closeWebSocket(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
