// Package hub implements the realtime broadcast layer: a topic-keyed
// registry of WebSocket connections that ingestion outputs fan out to.
//
// Topics are "all", "tracker:<identifier>", "alerts" and "geofence:<id>".
// Every connection is implicitly subscribed to "all", which carries
// position updates and sync status; alert and geofence feeds reach only
// their subscribers (and subscribers of the source tracker's feed).
// Publishing is fire-and-forget: a slow subscriber is dropped, never
// waited on.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
)

// Topic names.
const (
	TopicAll    = "all"
	TopicAlerts = "alerts"
)

// TrackerTopic returns the per-tracker feed topic.
func TrackerTopic(identifier string) string {
	return "tracker:" + identifier
}

// GeofenceTopic returns the per-geofence feed topic.
func GeofenceTopic(id uint) string {
	return fmt.Sprintf("geofence:%d", id)
}

// Server-to-client event types.
const (
	EventPositionUpdate = "position-update"
	EventPositionsBatch = "positions-batch"
	EventAlertNew       = "alert-new"
	EventGeofence       = "geofence-event"
	EventTrackerStatus  = "tracker-status"
	EventSyncStatus     = "sync-status"
)

type message struct {
	topics []string
	data   []byte
}

type subRequest struct {
	client *Client
	topic  string
	add    bool
}

// Hub multiplexes ingestion outputs to subscribed observers. All
// registry state is owned by the Run loop; the public surface only sends
// on channels.
type Hub struct {
	clients    map[*Client]bool
	topics     map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	subscribe  chan subRequest
	broadcast  chan message
	done       chan struct{}
	count      atomic.Int64
}

// New creates a hub. Call Run to start its event loop.
func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		topics:     make(map[string]map[*Client]bool),
		register:   make(chan *Client, 8),
		unregister: make(chan *Client, 8),
		subscribe:  make(chan subRequest, 64),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
}

// Run drives the hub until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			log.Printf("[Hub] client %s connected, %d total", client.ID, len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Printf("[Hub] client %s disconnected, %d total", client.ID, len(h.clients))
			}

		case req := <-h.subscribe:
			if !h.clients[req.client] {
				continue
			}
			if req.topic == TopicAll {
				req.client.mutedAll = !req.add
				continue
			}
			if req.add {
				if h.topics[req.topic] == nil {
					h.topics[req.topic] = make(map[*Client]bool)
				}
				h.topics[req.topic][req.client] = true
			} else if subs := h.topics[req.topic]; subs != nil {
				delete(subs, req.client)
				if len(subs) == 0 {
					delete(h.topics, req.topic)
				}
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// drop removes a client from the registry and every topic. The send
// channel stays open; closing done tells the write pump to finish so
// that concurrent senders cannot panic on a closed channel.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	for topic, subs := range h.topics {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.count.Store(int64(len(h.clients)))
	close(client.done)
}

// deliver fans a message out to the union of its topics' subscribers.
// A client whose send buffer is full is dropped rather than waited on.
func (h *Hub) deliver(msg message) {
	targets := make(map[*Client]bool)
	for _, topic := range msg.topics {
		if topic == TopicAll {
			for client := range h.clients {
				if !client.mutedAll {
					targets[client] = true
				}
			}
			continue
		}
		for client := range h.topics[topic] {
			targets[client] = true
		}
	}

	for client := range targets {
		if !client.TrySend(msg.data) {
			log.Printf("[Hub] client %s too slow, dropping", client.ID)
			h.drop(client)
		}
	}
}

// Stop shuts the hub down, dropping every connection.
func (h *Hub) Stop() {
	close(h.done)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Register adds a connection to the registry.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a connection.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds the client to a topic.
func (h *Hub) Subscribe(client *Client, topic string) {
	select {
	case h.subscribe <- subRequest{client: client, topic: topic, add: true}:
	case <-h.done:
	}
}

// Unsubscribe removes the client from a topic.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	select {
	case h.subscribe <- subRequest{client: client, topic: topic, add: false}:
	case <-h.done:
	}
}

// publish envelopes and enqueues an event, dropping it when the hub's
// queue is saturated. Fan-out must never block a publisher.
func (h *Hub) publish(eventType string, data interface{}, topics ...string) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": data,
	})
	if err != nil {
		log.Printf("[Hub] marshal %s failed: %v", eventType, err)
		return
	}
	select {
	case h.broadcast <- message{topics: topics, data: payload}:
	default:
		log.Printf("[Hub] broadcast queue full, dropping %s", eventType)
	}
}

// PublishPosition fans a position update out to the global and per-tracker
// feeds.
func (h *Hub) PublishPosition(identifier string, data interface{}) {
	h.publish(EventPositionUpdate, data, TopicAll, TrackerTopic(identifier))
}

// PublishTrackerStatus fans an online/offline change out.
func (h *Hub) PublishTrackerStatus(identifier string, data interface{}) {
	h.publish(EventTrackerStatus, data, TopicAll, TrackerTopic(identifier))
}

// PublishAlert fans a new alert out to the alert feed and the source
// tracker's feed.
func (h *Hub) PublishAlert(identifier string, data interface{}) {
	h.publish(EventAlertNew, data, TopicAlerts, TrackerTopic(identifier))
}

// PublishGeofence fans a geofence transition out to the region's feed and
// the source tracker's feed.
func (h *Hub) PublishGeofence(geofenceID uint, identifier string, data interface{}) {
	h.publish(EventGeofence, data, GeofenceTopic(geofenceID), TrackerTopic(identifier))
}

// PublishSyncStatus fans a poller batch outcome out to the global feed.
func (h *Hub) PublishSyncStatus(data interface{}) {
	h.publish(EventSyncStatus, data, TopicAll)
}
