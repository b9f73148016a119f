package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 1 << 20
	sessionCookie  = "session_token"
	handshakeLimit = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("network: channel not connected")
	ErrUnauthorized = errors.New("network: session rejected by gateway")
	ErrClosed       = errors.New("network: channel closed")
)

// Channel is one websocket to a gateway service ("contacts" or "messages").
// Decoded frames are forwarded to the event stream.
type Channel struct {
	name   string
	url    string
	token  string
	dialer *websocket.Dialer
	logger *logger.Logger
	events chan<- events.Event
	// annotate, when set before Connect, fills in decoded events.
	annotate func(*events.Event)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
	done    chan struct{}
	wait    sync.WaitGroup
}

func NewChannel(name, url, token string, log *logger.Logger, out chan<- events.Event) *Channel {
	return &Channel{
		name:   name,
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeLimit, Proxy: http.ProxyFromEnvironment},
		logger: log,
		events: out,
		done:   make(chan struct{}),
	}
}

// Name reports which service the channel talks to.
func (c *Channel) Name() string { return c.name }

// Connect dials the service and starts the read loop. Calling Connect on
// a live channel replaces the connection.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Add("Cookie", (&http.Cookie{Name: sessionCookie, Value: c.token}).String())
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%s: %w", c.name, ErrUnauthorized)
		}
		return fmt.Errorf("dial %s: %w", c.name, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	prev := c.conn
	c.conn = conn
	c.wait.Add(2)
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	c.logger.Info("connected to %s channel", c.name)
	stop := make(chan struct{})
	go c.readLoop(conn, stop)
	go c.pingLoop(conn, stop)
	return nil
}

// Connected reports whether a live connection is held.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send validates frame and writes it as JSON.
func (c *Channel) Send(frame any) error {
	if err := validateFrame(frame); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%s: %w", c.name, ErrNotConnected)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write %s: %w", c.name, err)
	}
	return nil
}

// Close shuts the connection down and waits for the loops to exit.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	c.wait.Wait()
}

func (c *Channel) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer c.wait.Done()
	defer close(stop)
	defer c.drop(conn)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if c.current() != conn {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("%s channel closed by server", c.name)
			} else {
				c.logger.Error("%s channel read: %v", c.name, err)
			}
			emit(c.events, events.Notice(events.LevelError, fmt.Sprintf("Lost connection to %s service", c.name)))
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		evt, err := decodeFrame(data)
		if err != nil {
			if errors.Is(err, events.ErrUnknownKind) {
				c.logger.Warn("%s channel: skipping frame: %v", c.name, err)
			} else {
				c.logger.Error("%s channel: %v", c.name, err)
			}
			continue
		}
		if c.annotate != nil {
			c.annotate(&evt)
		}
		c.logger.Debug("%s channel: %s", c.name, evt.Kind)
		emit(c.events, evt)
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wait.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Error("%s channel ping: %v", c.name, err)
				conn.Close()
				return
			}
		}
	}
}

func (c *Channel) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Channel) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func emit(out chan<- events.Event, evt events.Event) {
	if out == nil {
		return
	}
	select {
	case out <- evt:
	default:
	}
}
