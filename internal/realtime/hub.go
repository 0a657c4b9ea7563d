package realtime

import "sync"

// DefaultClientBuffer is the number of frames queued per client before the
// hub starts dropping frames for it.
const DefaultClientBuffer = 64

// Hub holds the rooms served by this process.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	buffer int
}

// NewHub returns an empty hub.  A non-positive buffer selects
// DefaultClientBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Hub{rooms: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscription is one client's membership in a room.
type Subscription struct {
	hub     *Hub
	room    string
	ch      chan []byte
	once    sync.Once
	dropped uint64
}

// Join adds a member to the room of eventID.
func (h *Hub) Join(eventID string) *Subscription {
	s := &Subscription{hub: h, room: eventID, ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	members, ok := h.rooms[eventID]
	if !ok {
		members = make(map[*Subscription]struct{})
		h.rooms[eventID] = members
	}
	members[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// C returns the frames delivered to this member.  The channel is closed by
// Close.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Room returns the event the member is watching.
func (s *Subscription) Room() string { return s.room }

// Dropped reports how many frames were discarded because the member's
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return s.dropped
}

// Close removes the member from its room.  It is safe to call more than
// once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if members, ok := h.rooms[s.room]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, s.room)
			}
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Deliver hands payload to every member of room without blocking.  Members
// whose buffer is full miss the frame.  It returns the number of members
// that received it.
func (h *Hub) Deliver(room string, payload []byte) int {
	// The write lock serialises Deliver with Close so a send never hits a
	// closed channel.
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.rooms[room] {
		select {
		case s.ch <- payload:
			n++
		default:
			s.dropped++
		}
	}
	return n
}

// Members returns the number of members in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
