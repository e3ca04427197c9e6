// Package subscription fans snapshots out to live subscribers.
//
// Every subscriber gets its own queue and delivery goroutine, so a slow
// callback only delays itself. Snapshots are full values, not diffs: when
// a queue grows past the backlog limit the pending entries collapse into
// the newest one, which is flagged stale so the client knows it skipped
// intermediate states.
package subscription

import (
	"sync"

	"go.uber.org/zap"
)

// Topic names a live query.
type Topic string

// RoomsTopic carries the room list.
func RoomsTopic() Topic { return "rooms" }

// MessagesTopic carries the message log of one room.
func MessagesTopic(roomID string) Topic { return Topic("messages:" + roomID) }

// IncomingTopic carries the ids that sent uid a pending request.
func IncomingTopic(uid string) Topic { return Topic("incoming:" + uid) }

// OutgoingTopic carries the ids uid sent a pending request to.
func OutgoingTopic(uid string) Topic { return Topic("outgoing:" + uid) }

// FriendsTopic carries uid's friends.
func FriendsTopic(uid string) Topic { return Topic("friends:" + uid) }

// Snapshot is one delivery. Seq counts deliveries per subscription,
// starting at 1 for the initial value. Data must be treated as read-only:
// the same value is shared by every subscriber of the topic.
type Snapshot struct {
	Topic Topic
	Seq   uint64
	Data  any
	Stale bool
	Err   error
}

// Handler receives snapshots in order on the subscription's goroutine.
type Handler func(Snapshot)

// Hub routes published snapshots to the subscriptions of a topic.
type Hub struct {
	mu         sync.RWMutex
	topics     map[Topic]map[uint64]*Subscription
	nextID     uint64
	maxBacklog int
	log        *zap.Logger
	closed     bool
}

// NewHub returns a hub whose subscriber queues hold at most maxBacklog
// pending snapshots.
func NewHub(maxBacklog int, log *zap.Logger) *Hub {
	if maxBacklog < 1 {
		maxBacklog = 1
	}
	return &Hub{
		topics:     make(map[Topic]map[uint64]*Subscription),
		maxBacklog: maxBacklog,
		log:        log.Named("subscription"),
	}
}

// Subscribe registers fn on topic and queues initial as its first
// snapshot. Callers that also publish to topic must hold the same lock
// around the load of initial and this call, so no update is lost between
// them.
func (h *Hub) Subscribe(topic Topic, initial any, fn Handler) *Subscription {
	sub := &Subscription{
		topic: topic,
		hub:   h,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.id] = sub
	sub.enqueue(Snapshot{Topic: topic, Data: initial}, h.maxBacklog)
	h.mu.Unlock()

	go sub.run()
	return sub
}

// Publish queues data for every current subscriber of topic.
func (h *Hub) Publish(topic Topic, data any) {
	h.fanout(topic, Snapshot{Topic: topic, Data: data})
}

// PublishError tells subscribers the latest value could not be loaded.
// They receive their last good value flagged stale, with err attached.
func (h *Hub) PublishError(topic Topic, err error) {
	h.fanout(topic, Snapshot{Topic: topic, Stale: true, Err: err})
}

func (h *Hub) fanout(topic Topic, snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.topics[topic] {
		sub.enqueue(snap, h.maxBacklog)
	}
}

// HasSubscribers reports whether anyone is listening on topic.
func (h *Hub) HasSubscribers(topic Topic) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic]) > 0
}

// SubscriberCount returns the number of live subscriptions on topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close cancels every subscription. Later subscriptions start cancelled.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, subs := range h.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	h.topics = make(map[Topic]map[uint64]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
}

// Subscription is a handle on one registered handler.
type Subscription struct {
	id    uint64
	topic Topic
	hub   *Hub
	fn    Handler

	mu       sync.Mutex
	queue    []Snapshot
	seq      uint64
	lastData any

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() Topic { return s.topic }

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops delivery. A callback already running finishes; nothing is
// delivered after it returns. Cancel is idempotent.
func (s *Subscription) Cancel() {
	s.hub.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(snap Snapshot, maxBacklog int) {
	s.mu.Lock()
	s.seq++
	snap.Seq = s.seq
	if snap.Err == nil {
		s.lastData = snap.Data
	} else {
		snap.Data = s.lastData
	}
	s.queue = append(s.queue, snap)
	if len(s.queue) > maxBacklog {
		latest := s.queue[len(s.queue)-1]
		latest.Stale = true
		s.queue = append(s.queue[:0], latest)
		s.hub.log.Debug("subscriber backlog collapsed", zap.String("topic", string(s.topic)), zap.Uint64("seq", latest.Seq))
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Snapshot{}, false
	}
	snap := s.queue[0]
	s.queue[0] = Snapshot{}
	s.queue = s.queue[1:]
	return snap, true
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			snap, ok := s.next()
			if !ok {
				break
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(snap)
		}
	}
}

func (s *Subscription) deliver(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.hub.log.Error("subscription handler panicked", zap.String("topic", string(s.topic)), zap.Any("panic", r))
		}
	}()
	s.fn(snap)
}
