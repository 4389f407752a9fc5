// Package companion implements the authenticated Companion link session:
// pairing orchestration, the encrypted frame channel, remote-control
// requests and inbound event dispatch.
package companion

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/reekystive/cuepad/pkg/credentials"
	"github.com/reekystive/cuepad/pkg/crypto"
	"github.com/reekystive/cuepad/pkg/frame"
	"github.com/reekystive/cuepad/pkg/opack"
	"github.com/reekystive/cuepad/pkg/pairing"
	"github.com/reekystive/cuepad/pkg/transport"
)

// DefaultTimeout bounds every reply wait. The fixed button-gesture delays
// are not subject to it.
const DefaultTimeout = 10 * time.Second

// State is the session lifecycle position. Exactly one pairing or verify
// exchange is active at a time.
type State int

const (
	StateIdle State = iota
	StatePairing
	StateVerifying
	StateEstablished
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePairing:
		return "Pairing"
	case StateVerifying:
		return "Verifying"
	case StateEstablished:
		return "Established"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config configures a Session.
type Config struct {
	// Timeout bounds reply waits. Zero means DefaultTimeout.
	Timeout time.Duration

	// Dialer re-establishes the transport for the single reconnect
	// attempt. Nil disables reconnection.
	Dialer func() (transport.Conn, error)

	// PlaintextData disables data-frame AEAD after pair-verify. Interop
	// escape hatch; leave false for current Apple TVs.
	PlaintextData bool

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// Session owns one authenticated Companion connection.
//
// All operations are safe for concurrent use; internally one goroutine
// reads frames from the transport and dispatches them, while callers'
// goroutines service outbound requests. Observer callbacks run on the read
// goroutine and must not block.
type Session struct {
	config Config
	log    logging.LeveledLogger

	mu    sync.Mutex
	conn  transport.Conn
	state State
	creds *credentials.Credentials

	sendKey     []byte
	recvKey     []byte
	sendCounter uint64
	recvCounter uint64

	focus FocusState
	text  string

	pairingReply chan []byte
	pending      map[string]chan map[string]any

	observers  map[int]func(Event)
	observerID int

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession wraps an open transport connection and starts the read loop.
// The session starts in StateIdle; run Pair or Verify next.
func NewSession(conn transport.Conn, config Config) *Session {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	s := &Session{
		config:    config,
		conn:      conn,
		state:     StateIdle,
		pending:   make(map[string]chan map[string]any),
		observers: make(map[int]func(Event)),
		closeCh:   make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("companion")
	}

	s.wg.Add(1)
	go s.readLoop(conn)

	return s
}

// State returns the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FocusState returns the current keyboard focus state.
func (s *Session) FocusState() FocusState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// Observe registers an event callback and returns its subscription.
func (s *Session) Observe(fn func(Event)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observerID++
	id := s.observerID
	s.observers[id] = fn
	return &Subscription{session: s, id: id}
}

// Close tears the session down and waits for the read loop to exit.
func (s *Session) Close() error {
	s.teardown()
	s.wg.Wait()
	return nil
}

// Pair runs pair-setup with the given PIN. On success the returned record
// carries the freshly generated long-term identity; its Identifier is
// bound to the device by the caller before persisting. Any failure tears
// the session down; reconnect to retry.
func (s *Session) Pair(ctx context.Context, pin string) (*credentials.Credentials, error) {
	setup, err := pairing.NewSetup(pin)
	if err != nil {
		return nil, err
	}

	if err := s.enterExchange(StatePairing); err != nil {
		return nil, err
	}

	msg, err := setup.Start()
	if err != nil {
		s.teardown()
		return nil, err
	}

	for {
		reply, err := s.roundTripPairing(ctx, msg)
		if err != nil {
			s.teardown()
			return nil, err
		}

		var creds *credentials.Credentials
		msg, creds, err = setup.Handle(reply)
		if err != nil {
			s.teardown()
			return nil, err
		}
		if creds != nil {
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			return creds, nil
		}
	}
}

// Verify runs pair-verify from stored credentials, installs the channel
// keys and starts the Companion session. Any failure tears the session
// down.
func (s *Session) Verify(ctx context.Context, creds *credentials.Credentials) error {
	verify, err := pairing.NewVerify(creds)
	if err != nil {
		return err
	}

	if err := s.enterExchange(StateVerifying); err != nil {
		return err
	}

	msg, err := verify.Start()
	if err != nil {
		s.teardown()
		return err
	}

	var keys *pairing.ChannelKeys
	for keys == nil {
		reply, err := s.roundTripPairing(ctx, msg)
		if err != nil {
			s.teardown()
			return err
		}

		msg, keys, err = verify.Handle(reply)
		if err != nil {
			s.teardown()
			return err
		}
	}

	s.mu.Lock()
	s.sendKey = keys.SendKey
	s.recvKey = keys.RecvKey
	s.sendCounter = 0
	s.recvCounter = 0
	s.creds = creds
	s.state = StateEstablished
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("pair-verify complete, channel established")
	}

	return s.StartSession(ctx)
}

// StartSession announces the session to the device and waits for the
// acknowledgement. Called automatically at the end of Verify.
func (s *Session) StartSession(ctx context.Context) error {
	_, err := s.request(ctx, map[string]any{
		keyType:      EventSessionStart,
		keyRequestID: uuid.NewString(),
	})
	return err
}

// enterExchange moves Idle to the given exchange state.
func (s *Session) enterExchange(target State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
	default:
		return ErrBusy
	}
	s.state = target
	return nil
}

// roundTripPairing sends a pairing message and waits for the next TLV8
// reply body.
func (s *Session) roundTripPairing(ctx context.Context, msg *pairing.Message) ([]byte, error) {
	s.mu.Lock()
	if s.pairingReply != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	ch := make(chan []byte, 1)
	s.pairingReply = ch
	conn := s.conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pairingReply = nil
		s.mu.Unlock()
	}()

	if err := s.writeFrame(conn, msg.FrameType, msg.Body); err != nil {
		return nil, err
	}

	return s.await(ctx, ch)
}

// await blocks for a reply, the timeout, cancellation or session close.
// Timeout and cancellation terminate the session per the concurrency
// contract.
func (s *Session) await(ctx context.Context, ch <-chan []byte) ([]byte, error) {
	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	case <-timer.C:
		s.teardown()
		return nil, ErrTimeout
	case <-ctx.Done():
		s.teardown()
		return nil, ctx.Err()
	case <-s.closeCh:
		return nil, ErrClosed
	}
}

// request sends an OPACK request carrying an _i correlation id and waits
// for the matching reply.
func (s *Session) request(ctx context.Context, payload map[string]any) (map[string]any, error) {
	id, _ := payload[keyRequestID].(string)
	if id == "" {
		id = uuid.NewString()
		payload[keyRequestID] = id
	}

	ch := make(chan map[string]any, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.sendEvent(payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		s.teardown()
		return nil, ErrTimeout
	case <-ctx.Done():
		s.teardown()
		return nil, ctx.Err()
	case <-s.closeCh:
		return nil, ErrClosed
	}
}

// sendEvent OPACK-encodes and sends one data frame, sealing it when the
// channel keys are installed.
func (s *Session) sendEvent(payload map[string]any) error {
	data, err := opack.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateEstablished {
		closed := s.state == StateClosed
		s.mu.Unlock()
		if closed {
			return ErrClosed
		}
		return ErrNotConnected
	}

	if s.sendKey != nil && !s.config.PlaintextData {
		if s.sendCounter == math.MaxUint64 {
			s.mu.Unlock()
			s.teardown()
			return ErrCounterExhausted
		}
		data, err = crypto.Seal(s.sendKey, crypto.CounterNonce(s.sendCounter), data)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.sendCounter++
	}
	conn := s.conn
	s.mu.Unlock()

	return s.writeFrame(conn, frame.TypeEvent, data)
}

// writeFrame frames and sends one message.
func (s *Session) writeFrame(conn transport.Conn, t frame.Type, payload []byte) error {
	if s.log != nil {
		s.log.Tracef("send %s frame, %d bytes", t, len(payload))
	}
	return conn.Send(frame.Encode(&frame.Frame{Type: t, Payload: payload}))
}

// readLoop receives bytes, reassembles frames and dispatches them.
func (s *Session) readLoop(conn transport.Conn) {
	defer s.wg.Done()

	var dec frame.Decoder
	for {
		data, err := conn.Recv()
		if err != nil {
			s.handleTransportError(conn, err)
			return
		}

		dec.Feed(data)
		for {
			f, err := dec.Next()
			if err == frame.ErrInsufficientData {
				break
			}
			if err != nil {
				// Unknown frame types are logged and skipped.
				if s.log != nil {
					s.log.Warnf("dropping frame: %v", err)
				}
				continue
			}
			if err := s.dispatch(f); err != nil {
				if s.log != nil {
					s.log.Errorf("fatal dispatch error: %v", err)
				}
				s.teardown()
				return
			}
		}
	}
}

// dispatch routes one inbound frame. A returned error is fatal to the
// session.
func (s *Session) dispatch(f *frame.Frame) error {
	switch f.Type {
	case frame.TypePSStart, frame.TypePSNext, frame.TypePVStart, frame.TypePVNext:
		s.mu.Lock()
		ch := s.pairingReply
		s.mu.Unlock()
		if ch != nil {
			select {
			case ch <- f.Payload:
			default:
				if s.log != nil {
					s.log.Warnf("dropping extra %s reply", f.Type)
				}
			}
		} else if s.log != nil {
			s.log.Warnf("unsolicited %s frame", f.Type)
		}
		return nil

	case frame.TypeEvent:
		return s.dispatchEvent(f.Payload)

	default:
		return nil
	}
}

// dispatchEvent opens and routes one data frame.
func (s *Session) dispatchEvent(payload []byte) error {
	s.mu.Lock()
	if s.recvKey != nil && !s.config.PlaintextData {
		if s.recvCounter == math.MaxUint64 {
			s.mu.Unlock()
			return ErrCounterExhausted
		}
		plain, err := crypto.Open(s.recvKey, crypto.CounterNonce(s.recvCounter), payload)
		if err != nil {
			s.mu.Unlock()
			return ErrDecrypt
		}
		s.recvCounter++
		payload = plain
	}
	s.mu.Unlock()

	value, err := opack.Unmarshal(payload)
	if err != nil {
		// Payloads that do not parse are logged but not fatal.
		if s.log != nil {
			s.log.Warnf("undecodable event payload: %v", err)
		}
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		if s.log != nil {
			s.log.Warnf("event payload is not a map")
		}
		return nil
	}

	eventType, _ := m[keyType].(string)
	switch eventType {
	case EventTextInputStarted, EventTextInputStopped:
		s.updateFocus(m)
	}

	// Correlate replies by _i.
	if id, ok := m[keyRequestID].(string); ok {
		s.mu.Lock()
		ch := s.pending[id]
		s.mu.Unlock()
		if ch != nil {
			select {
			case ch <- m:
			default:
			}
			return nil
		}
	}

	if eventType != "" {
		s.emit(Event{Type: eventType, Payload: m})
	}
	return nil
}

// updateFocus applies a text-input session event: focus is gained exactly
// when the payload carries the RTI document.
func (s *Session) updateFocus(m map[string]any) {
	doc, hasDoc := m[keyTextDoc].(map[string]any)

	s.mu.Lock()
	if hasDoc {
		s.focus = Focused
		if text, ok := doc["text"].(string); ok {
			s.text = text
		}
	} else {
		s.focus = Unfocused
		s.text = ""
	}
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debugf("keyboard focus: %s", s.FocusState())
	}
}

// emit delivers an event to every observer.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// handleTransportError runs the single reconnect attempt, or finishes the
// teardown.
func (s *Session) handleTransportError(conn transport.Conn, err error) {
	select {
	case <-s.closeCh:
		return
	default:
	}

	s.mu.Lock()
	canReconnect := s.state == StateEstablished && s.creds != nil && s.config.Dialer != nil
	creds := s.creds
	s.mu.Unlock()

	if s.log != nil {
		s.log.Warnf("transport error: %v", err)
	}

	if !canReconnect {
		s.teardown()
		s.emit(Event{Type: EventConnectionLost})
		return
	}

	conn.Close()
	if s.reconnect(creds) {
		s.emit(Event{Type: EventReconnected})
		return
	}
	s.teardown()
	s.emit(Event{Type: EventConnectionLost})
}

// reconnect re-dials, swaps the transport and re-runs pair-verify.
func (s *Session) reconnect(creds *credentials.Credentials) bool {
	if s.log != nil {
		s.log.Info("attempting reconnect")
	}

	newConn, err := s.config.Dialer()
	if err != nil {
		if s.log != nil {
			s.log.Warnf("reconnect dial failed: %v", err)
		}
		return false
	}

	s.mu.Lock()
	s.conn = newConn
	s.state = StateIdle
	s.sendKey = nil
	s.recvKey = nil
	s.focus = Unfocused
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(newConn)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()
	if err := s.Verify(ctx, creds); err != nil {
		if s.log != nil {
			s.log.Warnf("reconnect verify failed: %v", err)
		}
		return false
	}
	return true
}

// teardown closes the transport, zeroes key material and fails all
// waiters. Idempotent.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.closeCh)

		s.mu.Lock()
		s.state = StateClosed
		crypto.Zeroize(s.sendKey)
		crypto.Zeroize(s.recvKey)
		s.sendKey = nil
		s.recvKey = nil
		// Waiters are woken via closeCh; the reply channels are simply
		// abandoned.
		s.pairingReply = nil
		s.pending = make(map[string]chan map[string]any)
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		if s.log != nil {
			s.log.Debug("session closed")
		}
	})
}
