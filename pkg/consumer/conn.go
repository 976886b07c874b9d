// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmux/agentmux/pkg/errors"
)

const (
	// sendQueueDepth bounds the per-consumer outbound queue in frames. The
	// byte threshold in the broadcaster applies first; the depth is the hard
	// backstop against a wedged socket.
	sendQueueDepth = 256

	// writeWait is the per-frame write deadline.
	writeWait = 10 * time.Second
)

// conn adapts one gorilla WebSocket to session.ConsumerConn. Writes go
// through a bounded queue drained by a single writer goroutine, so Send
// never blocks a broadcast and BufferedAmount reflects bytes accepted but
// not yet on the wire.
type conn struct {
	id   string
	role string
	ws   *websocket.Conn

	sendq    chan []byte
	buffered atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// newConn wraps ws and starts the writer. extraDepth widens the queue past
// the backstop so a replay backlog enqueued at attach cannot overflow it.
func newConn(id, role string, ws *websocket.Conn, extraDepth int) *conn {
	c := &conn{
		id:    id,
		role:  role,
		ws:    ws,
		sendq: make(chan []byte, sendQueueDepth+extraDepth),
		done:  make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *conn) ID() string   { return c.id }
func (c *conn) Role() string { return c.role }

// BufferedAmount returns the bytes queued but not yet written.
func (c *conn) BufferedAmount() int {
	return int(c.buffered.Load())
}

// Send queues one encoded frame. It fails instead of blocking when the
// connection is closed or the queue backstop is full.
func (c *conn) Send(data []byte) error {
	select {
	case <-c.done:
		return errors.NewConsumerSendError("connection closed", nil)
	default:
	}
	select {
	case c.sendq <- data:
		c.buffered.Add(int64(len(data)))
		return nil
	default:
		return errors.NewConsumerSendError("send queue full", nil)
	}
}

// Close sends a close frame carrying the reason and tears the socket down.
// Idempotent; calls after the first return nil.
func (c *conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// WriteControl is safe alongside a concurrent WriteMessage.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *conn) writeLoop() {
	for {
		select {
		case data := <-c.sendq:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.TextMessage, data)
			c.buffered.Add(-int64(len(data)))
			if err != nil {
				// The read loop sees the broken socket and runs the detach;
				// the writer only has to stop.
				_ = c.Close("write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}
