package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const defaultCallTimeout = 30 * time.Second

// Client is one outbound connection to a remote container. Calls from
// any number of proxies share the connection; a circuit breaker stops
// hammering a dead peer.
type Client struct {
	url     string
	log     *logrus.Entry
	conn    *websocket.Conn
	breaker *gobreaker.CircuitBreaker

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[string]chan frame
	closed  chan struct{}
	once    sync.Once
}

// dialClient connects to a container's websocket endpoint.
func dialClient(url string, log *logrus.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		url:     url,
		log:     log.WithFields(logrus.Fields{"component": "transport", "peer": url}),
		conn:    conn,
		pending: make(map[string]chan frame),
		closed:  make(chan struct{}),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        url,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Info("Circuit breaker state changed")
		},
	})
	go c.readLoop()
	return c, nil
}

// Call performs one request/response round trip against target.
// result may be nil for calls without a return value.
func (c *Client) Call(ctx context.Context, target, method string, params, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.call(ctx, target, method, params, result)
	})
	return err
}

func (c *Client) call(ctx context.Context, target, method string, params, result any) error {
	var body json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		body = data
	}
	req := frame{
		ID:     uuid.NewString(),
		Kind:   kindRequest,
		Target: target,
		Method: method,
		Params: body,
	}

	ch := make(chan frame, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", method, target, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("%s at %s: %s", method, target, resp.Error)
		}
		if result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-c.closed:
		return fmt.Errorf("%s to %s: connection closed", method, target)
	case <-ctx.Done():
		return fmt.Errorf("%s to %s: %w", method, target, ctx.Err())
	}
}

// Close tears down the connection and fails all pending calls.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.closed:
			default:
				c.log.WithError(err).Debug("Connection lost")
			}
			return
		}
		if f.Kind != kindResponse {
			continue
		}
		c.mu.Lock()
		ch := c.pending[f.ID]
		c.mu.Unlock()
		if ch != nil {
			ch <- f
		}
	}
}
