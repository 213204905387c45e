package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
)

// ErrConnectionClosed is returned to calls pending when the socket closes.
var ErrConnectionClosed = errors.New("wallet connection closed")

// userRejectedCode is the provider error code for a declined request.
const userRejectedCode = 4001

// RPCError is an error object returned by the wallet bridge.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	if e.Code == userRejectedCode {
		return models.ErrUserRejected
	}
	return nil
}

// Notification is an unsolicited event from the wallet bridge.
type Notification struct {
	Method string
	Params json.RawMessage
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// WalletClient speaks JSON-RPC to a wallet bridge over WebSocket.
type WalletClient struct {
	url    string
	token  string
	logger *events.Logger

	// Connection state
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool
	nextID  uint64
	pending map[uint64]chan rpcMessage

	// Channels
	notifications chan Notification
	errors        chan error
	done          chan struct{}

	// Heartbeat
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWalletClient creates a wallet bridge client.
func NewWalletClient(wsURL, token string, logger *events.Logger) *WalletClient {
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:] // Convert http(s) to ws(s)
	}

	return &WalletClient{
		url:           wsURL,
		token:         token,
		logger:        logger.WithField("component", "wallet_client"),
		pending:       make(map[uint64]chan rpcMessage),
		notifications: make(chan Notification, 16),
		errors:        make(chan error, 4),
		done:          make(chan struct{}),
		pingInterval:  30 * time.Second,
		pongTimeout:   10 * time.Second,
	}
}

// Connect establishes the WebSocket connection.
func (c *WalletClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}
	if c.closed {
		return ErrConnectionClosed
	}

	c.logger.WithField("url", c.url).Info("Connecting to wallet bridge")

	headers := http.Header{}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	c.conn = conn

	go c.readLoop(conn)
	go c.pingLoop()

	c.logger.Debug("Wallet bridge connected")
	return nil
}

// Call invokes method and decodes the result into result.
func (c *WalletClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.nextID++
	id := c.nextID
	reply := make(chan rpcMessage, 1)
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.logger.WithFields(map[string]interface{}{
		"id":     id,
		"method": method,
	}).Debug("Sending wallet request")

	c.writeMu.Lock()
	err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case msg, ok := <-reply:
		if !ok {
			return ErrConnectionClosed
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionClosed
	}
}

// Notifications returns the notification channel. It is closed when the
// connection ends.
func (c *WalletClient) Notifications() <-chan Notification {
	return c.notifications
}

// Errors returns the error channel.
func (c *WalletClient) Errors() <-chan error {
	return c.errors
}

// Close closes the connection.
func (c *WalletClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}

	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// readLoop dispatches responses to pending calls and forwards notifications.
func (c *WalletClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.Close()
		close(c.notifications)
		close(c.errors)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))
	})

	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("Wallet bridge read error")
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))

		if msg.ID != nil {
			// Replies are buffered, so sending under the lock cannot block
			// and cannot race with Close closing the channel.
			c.mu.Lock()
			if reply, ok := c.pending[*msg.ID]; ok {
				select {
				case reply <- msg:
				default:
				}
			}
			c.mu.Unlock()
			continue
		}

		if msg.Method == "" {
			continue
		}

		c.logger.WithField("method", msg.Method).Debug("Wallet notification")

		select {
		case c.notifications <- Notification{Method: msg.Method, Params: msg.Params}:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic pings.
func (c *WalletClient) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				return
			}

			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.WithError(err).Warn("Ping failed")
				return
			}

		case <-c.done:
			return
		}
	}
}
