package gateway

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
)

const (
	maxMessageSize = 512 * 1024
	writeWait      = 5 * time.Second
)

// WSSink writes events as websocket text frames; heartbeats become ping frames.
// Writes from the channel and pong replies from WatchDisconnect share mu.
type WSSink struct {
	conn net.Conn
	mu   sync.Mutex
}

func NewWSSink(conn net.Conn) *WSSink {
	return &WSSink{conn: conn}
}

func (s *WSSink) Write(ev protocol.Event) error {
	if ev.Kind == protocol.KindHeartbeat {
		return s.writeFrame(ws.OpPing, nil)
	}

	payload, err := ev.Payload()
	if err != nil {
		return err
	}
	return s.writeFrame(ws.OpText, payload)
}

func (s *WSSink) writeFrame(op ws.OpCode, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteServerMessage(s.conn, op, payload)
}

func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.Write(ws.CompiledClose)
	return s.conn.Close()
}

// WatchDisconnect reads client frames until the peer goes away and then calls
// cancel. Pings are answered; data frames are ignored since the channel has
// no inbound commands.
func (s *WSSink) WatchDisconnect(idle time.Duration, cancel context.CancelFunc, logger *zap.Logger) {
	defer cancel()

	s.conn.SetReadDeadline(time.Now().Add(idle))

	for {
		header, err := ws.ReadHeader(s.conn)
		if err != nil {
			return
		}

		if header.Length > int64(maxMessageSize) {
			logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			if err := s.writeFrame(ws.OpPong, payload); err != nil {
				return
			}
		}

		// any frame, pongs included, proves the peer is alive
		s.conn.SetReadDeadline(time.Now().Add(idle))
	}
}
