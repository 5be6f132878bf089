// Package sse is the text/event-stream fallback for dashboards that cannot
// hold a websocket. Admission and delivery follow the websocket gateway.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/pubsub"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	Transport   = "sse"
	RouteAlerts = "/sse/alerts/organizations/:organization_id"
)

// Caller is the authenticated principal opening a stream.
type Caller struct {
	UserID         uint
	OrganizationID uint
}

// CallerFunc extracts the caller set by the auth middleware.
type CallerFunc func(c *gin.Context) (Caller, bool)

type Client struct {
	id             string
	organizationID uint
	sub            *pubsub.Subscription
}

type Hub struct {
	bus      pubsub.Bus
	metrics  *metrics.Metrics
	caller   CallerFunc
	mu       sync.RWMutex
	clients  map[string]*Client
	orgs     map[uint]map[string]bool // organization -> clientID set
	interval time.Duration
	retryMs  int
}

func NewHub(bus pubsub.Bus, caller CallerFunc, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		bus:      bus,
		caller:   caller,
		clients:  make(map[string]*Client),
		orgs:     make(map[uint]map[string]bool),
		interval: interval,
		retryMs:  5000,
	}
}

func (h *Hub) WithMetrics(m *metrics.Metrics) *Hub {
	h.metrics = m
	return h
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	if h.orgs[c.organizationID] == nil {
		h.orgs[c.organizationID] = make(map[string]bool)
	}
	h.orgs[c.organizationID][c.id] = true
	if h.metrics != nil {
		h.metrics.SessionOpened(Transport)
	}
}

func (h *Hub) removeClient(c *Client) {
	c.sub.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	if members := h.orgs[c.organizationID]; members != nil {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.orgs, c.organizationID)
		}
	}
	if h.metrics != nil {
		h.metrics.SessionClosed(Transport)
	}
}

// Clients counts open streams of an organization.
func (h *Hub) Clients(organizationID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orgs[organizationID])
}

func formatData(b []byte) string { return fmt.Sprintf("data: %s\n\n", b) }

// Serve is the gin handler of RouteAlerts.
func (h *Hub) Serve(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	organizationID, err := strconv.ParseUint(c.Param("organization_id"), 10, 64)
	if err != nil || organizationID == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown organization"})
		return
	}
	if caller.OrganizationID == 0 || caller.OrganizationID != uint(organizationID) {
		if h.metrics != nil {
			h.metrics.SessionRejected(Transport)
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "organization does not match caller"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	sub, err := h.bus.Subscribe(pubsub.OrganizationTopic(uint(organizationID)))
	if err != nil {
		logrus.Errorf("sse subscribe failed: %v", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "live channel unavailable"})
		return
	}
	client := &Client{id: uuid.NewString(), organizationID: uint(organizationID), sub: sub}
	h.addClient(client)
	defer h.removeClient(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	messages := sub.Messages()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if _, err := c.Writer.Write([]byte(formatData(msg))); err != nil {
				return
			}
			flusher.Flush()
			if h.metrics != nil {
				h.metrics.MessageSent(Transport)
			}
		}
	}
}
