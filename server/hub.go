package server

import (
	"context"
	"log/slog"
	"sync"

	"gennia/events"
)

const subscriberBuffer = 16

// Event is one room broadcast.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type subscribers struct {
	bcID  int
	chans map[int]chan Event
}

// Hub fans room broadcasts out to every subscriber of the room and mirrors
// them to the event feed.
type Hub struct {
	mu        sync.Mutex
	rooms     map[string]*subscribers
	publisher events.Publisher
}

func NewHub(publisher events.Publisher) *Hub {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Hub{
		rooms:     make(map[string]*subscribers),
		publisher: publisher,
	}
}

// Subscribe registers a subscriber for roomID. The returned cancel func
// removes it and closes the channel.
func (h *Hub) Subscribe(roomID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = &subscribers{chans: make(map[int]chan Event)}
		h.rooms[roomID] = subs
	}
	subs.bcID++
	id := subs.bcID
	ch := make(chan Event, subscriberBuffer)
	subs.chans[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(subs.chans, id)
			if len(subs.chans) == 0 && h.rooms[roomID] == subs {
				delete(h.rooms, roomID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast never blocks on a slow subscriber; a full channel drops the event.
func (h *Hub) Broadcast(ctx context.Context, roomID, name string, data any) {
	evt := Event{Name: name, Data: data}

	h.mu.Lock()
	if subs, ok := h.rooms[roomID]; ok {
		for id, ch := range subs.chans {
			select {
			case ch <- evt:
			default:
				slog.Warn("broadcast channel full, event dropped", "room", roomID, "subscriber", id, "event", name)
			}
		}
	}
	h.mu.Unlock()

	if err := h.publisher.Publish(ctx, roomID, name, data); err != nil {
		slog.Error("failed to publish room event", "room", roomID, "event", name, "error", err)
	}
}

func (h *Hub) subscriberCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[roomID]; ok {
		return len(subs.chans)
	}
	return 0
}
