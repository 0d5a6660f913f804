/*
Package gateway is the realtime surface of the messenger: it owns the WebSocket connections of
this instance, runs their lifecycle, routes inbound events to handlers and delivers outbound frames
either to a local socket or, through a relay, to the instance holding the socket.

This file defines the Client struct, representing one active WebSocket connection. It manages the
message communication loops (ReadPump and WritePump) and the bounded send queue.
*/
package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. A send-message frame carries
	// up to 5000 bytes of text plus attachment ids.
	maxMessageSize = 16384

	// number of frames queued per client before further frames are dropped.
	sendBufferSize = 256

	// WsCloseCodeUnauthorized is a custom WebSocket Close Code (4000-4999 range)
	// used when the handshake token is missing or rejected.
	WsCloseCodeUnauthorized = 4401

	// WsCloseCodeUpstream signals that authentication could not complete because a
	// collaborator was unavailable. Clients may retry.
	WsCloseCodeUpstream = 4503
)

var (
	// ErrClientClosed is returned when a frame is sent to a connection that already stopped.
	ErrClientClosed = errors.New("gateway: client closed")

	// ErrSendQueueFull is returned when the client does not drain its queue fast enough.
	ErrSendQueueFull = errors.New("gateway: client send queue full")
)

// Client struct represents an active WebSocket connection and the session it serves.
type Client struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// protocol state of the connection.
	session *Session

	// a buffered channel used to queue frames waiting to be written to the socket.
	// It is never closed; done signals the end of the connection instead.
	send chan []byte

	// closed once the client stops. Guarded by stopOnce.
	done     chan struct{}
	stopOnce sync.Once

	// close frame written by WritePump on shutdown, if any.
	closeMu    sync.Mutex
	closeFrame []byte
}

// newClient constructs a Client for an upgraded connection.
func newClient(conn *websocket.Conn, session *Session) *Client {
	return &Client{
		conn:    conn,
		session: session,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Session returns the protocol state of the connection.
func (c *Client) Session() *Session {
	return c.session
}

// Send queues a frame without blocking.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.log().Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return ErrSendQueueFull
	}
}

// CloseWithCode stops the client after writing a close frame with the given code.
// Frames still queued are written first.
func (c *Client) CloseWithCode(code int, reason string) {
	logger := c.log()
	logger.Info().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Closing connection.")

	c.closeMu.Lock()
	c.closeFrame = websocket.FormatCloseMessage(code, reason)
	c.closeMu.Unlock()

	c.stop()
}

func (c *Client) log() *zerolog.Logger {
	logger := c.session.Logger()
	return &logger
}

// stop signals both pumps to finish.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// ReadPump reads frames until the connection fails or the client stops, handing each frame
// to handle. Frames of one connection are handled sequentially, in arrival order.
func (c *Client) ReadPump(handle func(frame []byte)) {
	defer c.stop()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log().Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log().Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		handle(frame)

		select {
		case <-c.done:
			return
		default:
		}
	}
}

// WritePump writes queued frames and periodic pings to the socket. It closes the connection
// when it returns, which also ends ReadPump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.log().Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				c.stop()
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				c.stop()
				return
			}

		case <-c.done:
			c.drain()
			c.writeClose()
			return
		}
	}
}

// drain writes frames that were queued before the client stopped.
func (c *Client) drain() {
	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		default:
			return
		}
	}
}

// writeFrame writes one text frame. Returns false if the pump should terminate.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log().Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log().Debug().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePing sends a periodic WebSocket Ping message to maintain the connection heartbeat.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log().Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log().Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

func (c *Client) writeClose() {
	c.closeMu.Lock()
	frame := c.closeFrame
	c.closeMu.Unlock()

	if frame == nil {
		frame = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, frame); err != nil {
		c.log().Debug().Err(err).Msg("Failed to send WS Close Message.")
	}
}
