package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	source := requestSource(r)

	if s.config.Server.LocalhostOnly && !isLoopback(source) {
		s.writeRejection(w, http.StatusForbidden, "remote access disabled")
		return
	}

	if !s.checkOrigin(r) {
		s.writeRejection(w, http.StatusForbidden, "origin not allowed")
		return
	}

	if s.config.Security.AuthEnabled {
		outcome := s.guard.Verify(r.Context(), r.Header.Get(apiKeyHeader), source)
		if !outcome.Allowed() {
			s.writeOutcome(w, outcome)
			return
		}
	}

	// Reject obviously-full upgrades cheaply; admission is re-checked
	// atomically at registration.
	if s.hub.Count() >= s.config.Server.MaxStreamSubscribers {
		s.writeRejection(w, http.StatusServiceUnavailable, "stream subscriber limit reached")
		return
	}

	// checkOrigin already vetted the Origin header; an empty allow-list
	// means unrestricted, which Accept would otherwise tighten to
	// same-host only.
	acceptOpts := &websocket.AcceptOptions{
		OriginPatterns:     s.config.Server.AllowedOrigins,
		InsecureSkipVerify: len(s.config.Server.AllowedOrigins) == 0,
	}

	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		s.logger.Warn(r.Context(), err, "stream upgrade failed", "source", source)
		return
	}

	sub, err := s.hub.Subscribe(conn)
	if err != nil {
		conn.Close(websocket.StatusTryAgainLater, "subscriber limit reached")
		return
	}

	s.logger.Info(r.Context(), "stream subscriber connected", "subscriber", sub.id, "source", source)

	go s.writePump(sub)
	go s.readPump(sub)
}

// writePump drains the subscriber's send buffer onto the wire and keeps
// the connection alive with pings. A failed write ends only this
// subscriber.
func (s *Server) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-sub.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := sub.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				s.hub.Unsubscribe(sub)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := sub.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.hub.Unsubscribe(sub)
				return
			}
		}
	}
}

// readPump discards inbound frames and detects disconnects. The stream
// is one-way; requests belong on the sync endpoint. There is no idle
// timeout: the connection lives until the client goes away or a write
// or ping fails.
func (s *Server) readPump(sub *subscriber) {
	defer s.hub.Unsubscribe(sub)

	sub.conn.SetReadLimit(maxInboundMessageSize)

	for {
		if _, _, err := sub.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
