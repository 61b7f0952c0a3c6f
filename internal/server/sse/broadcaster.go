// Package sse provides Server-Sent Events broadcasting for lishe.
package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string
	mu      sync.Mutex
	once    sync.Once
}

var errClientClosed = errors.New("sse client closed")

// write is a no-op error once the client is closed, so a finished handler's
// ResponseWriter is never touched.
func (c *Client) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.Done:
		return errClientClosed
	default:
	}
	if _, err := c.Writer.Write(message); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

// detach closes the client and waits out a write already in progress.
func (c *Client) detach() {
	c.close()
	c.mu.Lock()
	defer c.mu.Unlock()
}

// Broadcaster manages SSE client connections and message broadcasting.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient adds a new SSE client connection.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[client.ID] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient removes a client connection.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	client.detach()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client disconnected")
}

// Broadcast sends a message to all connected clients.
// Clients whose write fails are dropped.
func (b *Broadcaster) Broadcast(data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}
	message := []byte(fmt.Sprintf("data: %s\n\n", jsonData))

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		err := client.write(message)
		if errors.Is(err, errClientClosed) {
			continue
		}
		if err != nil {
			log.Debug().Str("clientId", client.ID).Err(err).Msg("Failed to write to SSE client, removing")
			b.RemoveClient(client)
		}
	}
}

// CloseAll signals every client handler to return. It does not wait for
// in-flight writes; each handler does that on its way out.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*Client)
	b.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE handles an SSE connection request.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	if err := client.write([]byte(fmt.Sprintf("data: {\"type\":\"connected\",\"clientId\":%q}\n\n", client.ID))); err != nil {
		return
	}

	select {
	case <-r.Context().Done():
	case <-client.Done:
	}
}
