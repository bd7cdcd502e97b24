package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ecowing/metrics"
	"ecowing/models"
	"ecowing/sites"

	"github.com/apex/log"
)

const (
	TypeReport      = "report"
	TypeSites       = "sites"
	TypeSiteDetails = "site_details"
	TypeError       = "error"

	TypeSelectSite = "select_site"
)

// BroadcastMessage is the envelope of every server-to-client message.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// InboundMessage is a client request.
type InboundMessage struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

// SiteResolver returns the details shown when a client selects a site.
type SiteResolver func(ctx context.Context, location string) (interface{}, bool, error)

type directMessage struct {
	client *Client
	data   []byte
}

// Hub manages WebSocket connections and broadcasting
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan []byte

	// Replies for a single client
	direct chan directMessage

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	resolver SiteResolver

	// Closed when Run returns
	done chan struct{}

	mutex sync.RWMutex

	// Statistics
	lastBroadcast    time.Time
	connectedClients int
}

// NewHub creates a new WebSocket hub
func NewHub(resolver SiteResolver) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan directMessage, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		resolver:   resolver,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setConnected()
			h.mutex.Unlock()
			close(h.done)
			return

		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			h.setConnected()
			h.mutex.Unlock()
			log.Infof("Client connected. Total clients: %d", h.connectedClients)

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setConnected()
			}
			h.mutex.Unlock()
			log.Infof("Client disconnected. Total clients: %d", h.connectedClients)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				h.deliver(client, message)
			}
			h.lastBroadcast = time.Now()
			h.setConnected()
			h.mutex.Unlock()

		case m := <-h.direct:
			h.mutex.Lock()
			if h.clients[m.client] {
				h.deliver(m.client, m.data)
				h.setConnected()
			}
			h.mutex.Unlock()
		}
	}
}

// deliver drops clients whose buffers are full. Callers hold the lock.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) setConnected() {
	h.connectedClients = len(h.clients)
	metrics.WebsocketClients.Set(float64(h.connectedClients))
}

func encode(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(BroadcastMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// Broadcast sends a typed message to every connected client.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	b, err := encode(msgType, data)
	if err != nil {
		log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Warnf("Broadcast queue full, dropping %s message", msgType)
	}
}

// BroadcastReport announces a newly stored report.
func (h *Hub) BroadcastReport(r models.Report) {
	h.Broadcast(TypeReport, r)
}

// BroadcastSites pushes a fresh top-sites ranking.
func (h *Hub) BroadcastSites(views []sites.SiteView) {
	h.Broadcast(TypeSites, views)
	log.Infof("Broadcasted %d sites to %d clients", len(views), h.ClientCount())
}

func (h *Hub) reply(c *Client, msgType string, data interface{}) {
	b, err := encode(msgType, data)
	if err != nil {
		log.WithError(err).Error("Failed to marshal reply")
		return
	}
	select {
	case h.direct <- directMessage{client: c, data: b}:
	case <-h.done:
	}
}

// Add registers a client. It returns false once the hub has stopped.
func (h *Hub) Add(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// handle answers one client request.
func (h *Hub) handle(ctx context.Context, c *Client, in InboundMessage) {
	switch in.Type {
	case TypeSelectSite:
		if h.resolver == nil {
			h.reply(c, TypeError, "site lookup unavailable")
			return
		}
		details, ok, err := h.resolver(ctx, in.Location)
		switch {
		case err != nil:
			log.WithError(err).Warn("Failed to resolve site")
			h.reply(c, TypeError, "failed to load site")
		case !ok:
			h.reply(c, TypeError, "site not found")
		default:
			h.reply(c, TypeSiteDetails, details)
		}
	default:
		h.reply(c, TypeError, "unknown message type")
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connectedClients
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() (int, time.Time) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connectedClients, h.lastBroadcast
}
