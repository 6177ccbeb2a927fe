package live

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// EventHandler is called for every event received from the hub
type EventHandler func(ev Event)

// Client subscribes to a dashboard server's /ws endpoint
type Client struct {
	conn        *websocket.Conn
	mu          sync.Mutex
	isConnected bool
	done        chan struct{}
	handler     EventHandler
}

// NewClient creates a disconnected client
func NewClient(handler EventHandler) *Client {
	return &Client{handler: handler}
}

// WebSocketURL turns a server base URL (http://host:port) into its /ws URL
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Connect dials wsURL and starts listening. Done is closed when the
// connection ends.
func (c *Client) Connect(wsURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	c.conn = conn
	c.isConnected = true
	c.done = make(chan struct{})

	go c.listen(conn, c.done)
	return nil
}

// Done returns a channel closed when the current connection ends
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) listen(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.isConnected = false
		conn.Close()
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			continue
		}
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

// Disconnect closes the connection
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}
