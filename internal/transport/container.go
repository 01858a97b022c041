package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Handler dispatches one RPC method call on a hosted agent.
type Handler interface {
	HandleRPC(method string, params json.RawMessage) (any, error)
}

// Container hosts agents at ws://host:port/agents and manages outbound
// connections to other containers. Agent addresses have the form
// "host:port/name".
type Container struct {
	log      *logrus.Entry
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]Handler
	clients  map[string]*Client
	closed   bool
}

// NewContainer opens the listening socket. Port 0 picks a free port;
// Addr reports the resolved address.
func NewContainer(host string, port int, log *logrus.Logger) (*Container, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("listen on %s:%d: %w", host, port, err)
	}
	c := &Container{
		log:      log.WithFields(logrus.Fields{"component": "transport", "addr": listener.Addr().String()}),
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		handlers: make(map[string]Handler),
		clients:  make(map[string]*Client),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/agents", c.serveWS)
	c.server = &http.Server{Handler: mux}
	return c, nil
}

// Addr returns the container's host:port.
func (c *Container) Addr() string {
	return c.listener.Addr().String()
}

// Register hosts a handler under name and returns the agent's full
// address.
func (c *Container) Register(name string, h Handler) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = h
	return c.Addr() + "/" + name
}

// Start begins serving connections.
func (c *Container) Start() {
	c.log.Info("Container listening")
	go func() {
		if err := c.server.Serve(c.listener); err != nil && err != http.ErrServerClosed {
			c.log.WithError(err).Error("Container serve failed")
		}
	}()
}

// Shutdown closes the server and every outbound connection.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	clients := make([]*Client, 0, len(c.clients))
	for _, cl := range c.clients {
		clients = append(clients, cl)
	}
	c.clients = make(map[string]*Client)
	c.mu.Unlock()

	for _, cl := range clients {
		cl.Close()
	}
	return c.server.Shutdown(ctx)
}

// Connect resolves an agent address "host:port/name" to a proxy,
// establishing (or reusing) the connection to its container.
func (c *Container) Connect(addr string) (*Proxy, error) {
	hostport, _, ok := splitAddr(addr)
	if !ok {
		return nil, fmt.Errorf("transport: malformed agent address %q", addr)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: container is shut down")
	}
	client, exists := c.clients[hostport]
	c.mu.Unlock()

	if !exists {
		var err error
		client, err = dialClient("ws://"+hostport+"/agents", c.log.Logger)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if existing, ok := c.clients[hostport]; ok {
			// Lost the race; keep the established one.
			c.mu.Unlock()
			client.Close()
			client = existing
		} else {
			c.clients[hostport] = client
			c.mu.Unlock()
		}
	}
	return &Proxy{client: client, target: addr}, nil
}

// serveWS handles one inbound peer connection: every request frame is
// dispatched to the targeted handler and answered on the same
// connection.
func (c *Container) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("Peer connection closed")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.WithError(err).Warn("Dropping malformed frame")
			continue
		}
		if f.Kind != kindRequest {
			continue
		}
		c.dispatch(conn, &writeMu, f)
	}
}

// dispatch runs one request against its handler and writes the
// response. Handlers run inline so that frames of one peer stay
// ordered.
func (c *Container) dispatch(conn *websocket.Conn, writeMu *sync.Mutex, f frame) {
	resp := frame{ID: f.ID, Kind: kindResponse}

	_, name, ok := splitAddr(f.Target)
	c.mu.Lock()
	handler := c.handlers[name]
	c.mu.Unlock()

	switch {
	case !ok:
		resp.Error = fmt.Sprintf("malformed target %q", f.Target)
	case handler == nil:
		resp.Error = fmt.Sprintf("no agent %q in this container", name)
	default:
		result, err := handler.HandleRPC(f.Method, f.Params)
		if err != nil {
			resp.Error = err.Error()
		} else if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = fmt.Sprintf("marshal result: %v", err)
			} else {
				resp.Result = data
			}
		}
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(resp); err != nil {
		c.log.WithError(err).Warn("Failed to write response")
	}
}

// splitAddr splits "host:port/name" into its container and agent parts.
func splitAddr(addr string) (hostport, name string, ok bool) {
	i := strings.Index(addr, "/")
	if i <= 0 || i == len(addr)-1 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}
