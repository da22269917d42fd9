// Package transport simulates the live connection behind one direct-message
// conversation: connect and disconnect lifecycle, message delivery, the
// counterparty's typing indicator and replies, and random network drops with
// automatic reconnection.
//
// A Session is not safe for concurrent use. Every method, and every handler
// it invokes, runs on the eventloop.Loop the session was created with.
package transport

import (
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/reelshare/dm-gateway/internal/eventloop"
)

// ErrNotConnected is returned by Send when the session is not connected.
var ErrNotConnected = errors.New("transport: not connected")

// Option customizes a Session.
type Option func(*Session)

// WithRandom replaces the session's random source.
func WithRandom(r Random) Option {
	return func(s *Session) { s.rnd = r }
}

// WithSeed replaces the history replayed after the first connect.
func WithSeed(seed []SeedMessage) Option {
	return func(s *Session) { s.seed = append([]SeedMessage(nil), seed...) }
}

// WithReplyFunc replaces reply synthesis.
func WithReplyFunc(f ReplyFunc) Option {
	return func(s *Session) { s.reply = f }
}

// WithName sets the label used in log lines.
func WithName(name string) Option {
	return func(s *Session) { s.name = name }
}

// Session is one conversation's simulated connection.
type Session struct {
	loop  eventloop.Loop
	cfg   Config
	rnd   Random
	seed  []SeedMessage
	reply ReplyFunc
	name  string

	state  State
	typing bool
	log    []Message
	lastID int64

	opened bool
	closed bool
	seeded bool

	// Every pending timer, so Close can cancel all of them.
	timers map[*scheduled]struct{}
	// Events produced while disconnected, flushed on reconnect.
	outbox []func()
	// Set while handlers run; events they cause wait in pending so every
	// handler sees same-kind events in emission order.
	dispatching bool
	pending     []func()

	lastSub        uint64
	onConnected    topic[struct{}]
	onDisconnected topic[struct{}]
	onMessage      topic[Message]
	onTyping       topic[bool]
}

type scheduled struct {
	timer eventloop.Timer
}

// New creates a disconnected session. Call Open to start connecting.
func New(loop eventloop.Loop, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		loop:   loop,
		cfg:    cfg,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		seed:   DefaultSeed(),
		reply:  SynthesizeReply,
		name:   "session",
		timers: make(map[*scheduled]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open starts the connect sequence. It does nothing if the session is
// already connecting, connected, waiting to reconnect, or closed.
func (s *Session) Open() {
	if s.closed {
		log.Printf("[transport] %s: open ignored, session closed", s.name)
		return
	}
	if s.opened {
		return
	}
	s.opened = true
	s.state = StateConnecting
	s.schedule(s.cfg.ConnectLatency, s.completeConnect)
}

// Close disconnects for good. Every pending timer is cancelled, so no event
// is emitted once Close returns. A disconnected event is emitted first if
// the session was connected.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	wasConnected := s.state == StateConnected

	cancelled := 0
	for entry := range s.timers {
		if entry.timer.Stop() {
			cancelled++
		}
	}
	s.timers = make(map[*scheduled]struct{})
	s.outbox = nil
	s.pending = nil
	s.state = StateDisconnected
	s.typing = false

	log.Printf("[transport] %s: closed (messages=%d cancelled_timers=%d)", s.name, len(s.log), cancelled)
	if wasConnected {
		s.onDisconnected.publish(struct{}{}, func() bool { return false })
	}
}

// Send appends an outbound message and emits it immediately, then has the
// counterparty type and reply. It returns ErrNotConnected, and changes
// nothing, unless the session is connected. The text is not validated.
func (s *Session) Send(text string) (Message, error) {
	if s.closed || s.state != StateConnected {
		log.Printf("[transport] %s: send ignored, state=%s", s.name, s.state)
		return Message{}, ErrNotConnected
	}

	msg := s.appendMessage(SenderSelf, text, s.loop.Now(), 0)
	s.deliverMessage(msg)

	s.schedule(s.cfg.TypingDelay, func() {
		s.setTyping(true)
		s.schedule(s.responseDelay(), func() {
			s.setTyping(false)
			answer := s.appendMessage(SenderCounterparty, s.reply(text, s.rnd), s.loop.Now(), msg.ID)
			s.deliverMessage(answer)
		})
	})
	return msg, nil
}

// IsConnected reports whether the session is currently connected.
func (s *Session) IsConnected() bool {
	return s.state == StateConnected
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state
}

// Typing reports whether the counterparty is typing.
func (s *Session) Typing() bool {
	return s.typing
}

// Messages returns a copy of the message log in emission order.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.log))
	copy(out, s.log)
	return out
}

// Name returns the session's log label.
func (s *Session) Name() string {
	return s.name
}

// OnConnected registers fn for connected events.
func (s *Session) OnConnected(fn func()) Subscription {
	id := s.nextSubID()
	s.onConnected.add(id, func(struct{}) { fn() })
	return Subscription{Kind: EventConnected, id: id}
}

// OnDisconnected registers fn for disconnected events.
func (s *Session) OnDisconnected(fn func()) Subscription {
	id := s.nextSubID()
	s.onDisconnected.add(id, func(struct{}) { fn() })
	return Subscription{Kind: EventDisconnected, id: id}
}

// OnMessage registers fn for message events.
func (s *Session) OnMessage(fn func(Message)) Subscription {
	id := s.nextSubID()
	s.onMessage.add(id, fn)
	return Subscription{Kind: EventMessage, id: id}
}

// OnTyping registers fn for typing events.
func (s *Session) OnTyping(fn func(bool)) Subscription {
	id := s.nextSubID()
	s.onTyping.add(id, fn)
	return Subscription{Kind: EventTyping, id: id}
}

// Unsubscribe removes a handler. Unknown or already removed subscriptions
// are ignored.
func (s *Session) Unsubscribe(sub Subscription) {
	switch sub.Kind {
	case EventConnected:
		s.onConnected.remove(sub.id)
	case EventDisconnected:
		s.onDisconnected.remove(sub.id)
	case EventMessage:
		s.onMessage.remove(sub.id)
	case EventTyping:
		s.onTyping.remove(sub.id)
	}
}

func (s *Session) nextSubID() uint64 {
	s.lastSub++
	return s.lastSub
}

func (s *Session) isClosed() bool {
	return s.closed
}

// schedule runs f after d and tracks the timer until it fires.
func (s *Session) schedule(d time.Duration, f func()) {
	entry := &scheduled{}
	entry.timer = s.loop.AfterFunc(d, func() {
		delete(s.timers, entry)
		f()
	})
	s.timers[entry] = struct{}{}
}

func (s *Session) completeConnect() {
	s.state = StateConnected
	log.Printf("[transport] %s: connected", s.name)
	s.announceConnected()
	if s.closed {
		return
	}
	if !s.seeded {
		s.seeded = true
		s.schedule(s.cfg.SyncDelay, s.replaySeed)
	}
	s.schedule(s.cfg.DropCheckInterval, s.checkDrop)
}

func (s *Session) replaySeed() {
	now := s.loop.Now()
	for _, sm := range s.seed {
		if s.closed {
			return
		}
		msg := s.appendMessage(sm.Sender, sm.Text, now.Add(-sm.Age), 0)
		s.deliverMessage(msg)
	}
}

// checkDrop re-arms itself for as long as the session lives.
func (s *Session) checkDrop() {
	s.schedule(s.cfg.DropCheckInterval, s.checkDrop)
	if s.state != StateConnected {
		return
	}
	if s.rnd.Float64() >= s.cfg.DropProbability {
		return
	}

	s.state = StateDisconnected
	log.Printf("[transport] %s: connection dropped, reconnecting in %s", s.name, s.cfg.ReconnectDelay)
	s.onDisconnected.publish(struct{}{}, s.isClosed)
	if s.closed {
		return
	}
	s.schedule(s.cfg.ReconnectDelay, s.reconnect)
}

func (s *Session) reconnect() {
	s.state = StateConnected
	log.Printf("[transport] %s: reconnected (queued=%d)", s.name, len(s.outbox))
	s.announceConnected()
}

// announceConnected emits connected, then anything held back while the link
// was down.
func (s *Session) announceConnected() {
	s.onConnected.publish(struct{}{}, s.isClosed)
	s.dispatching = true
	for len(s.outbox) > 0 && s.state == StateConnected && !s.closed {
		emit := s.outbox[0]
		s.outbox = s.outbox[1:]
		emit()
	}
	s.drainPending()
}

func (s *Session) appendMessage(sender Sender, text string, ts time.Time, replyTo int64) Message {
	s.lastID++
	msg := Message{
		ID:        s.lastID,
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
		ReplyTo:   replyTo,
	}
	s.log = append(s.log, msg)
	return msg
}

func (s *Session) setTyping(v bool) {
	s.typing = v
	s.deliver(func() { s.onTyping.publish(v, s.isClosed) })
}

func (s *Session) deliverMessage(msg Message) {
	s.deliver(func() { s.onMessage.publish(msg, s.isClosed) })
}

// deliver emits now when connected and nothing is queued ahead, otherwise
// queues for the next reconnect. Events caused by a handler run after the
// current emission reaches every handler.
func (s *Session) deliver(emit func()) {
	if s.closed {
		return
	}
	if s.state != StateConnected || len(s.outbox) > 0 {
		s.outbox = append(s.outbox, emit)
		return
	}
	if s.dispatching {
		s.pending = append(s.pending, emit)
		return
	}
	s.dispatching = true
	emit()
	s.drainPending()
}

// drainPending runs the events queued by handlers, including any they queue
// in turn, then leaves dispatch mode.
func (s *Session) drainPending() {
	for len(s.pending) > 0 && !s.closed {
		emit := s.pending[0]
		s.pending = s.pending[1:]
		emit()
	}
	s.pending = nil
	s.dispatching = false
}

func (s *Session) responseDelay() time.Duration {
	d := s.cfg.ResponseLatency
	if s.cfg.ResponseJitter > 0 {
		d += time.Duration(s.rnd.Int63n(int64(s.cfg.ResponseJitter)))
	}
	return d
}
