package companion

// Inbound event types carried in the _t tag, plus the synthetic events the
// session emits about its own lifecycle.
const (
	// EventTextInputStarted reports a text field gaining focus.
	EventTextInputStarted = "_tiStarted"

	// EventTextInputStopped reports a text field losing focus.
	EventTextInputStopped = "_tiStopped"

	// EventNowPlayingInfo carries now-playing metadata; the session
	// forwards it to observers without interpreting it.
	EventNowPlayingInfo = "_nowPlayingInfo"

	// EventInterest is the registration request type.
	EventInterest = "_interest"

	// EventSessionStart is sent right after pair-verify completes.
	EventSessionStart = "_sessionStart"

	// EventConnectionLost is synthesised when the transport fails and the
	// single reconnect attempt does not recover it.
	EventConnectionLost = "connectionLost"

	// EventReconnected is synthesised after a successful reconnect.
	EventReconnected = "reconnected"
)

// requestTextInput is the request type for text edits; the device answers
// with _tiStarted/_tiStopped events.
const requestTextInput = "_tiStart"

// Payload keys used by Companion requests and events.
const (
	keyType        = "_t"
	keyRequestID   = "_i"
	keyButtonState = "_hBtS"
	keyHIDCode     = "_hidC"
	keyMediaCode   = "_mcc"
	keyRegEvents   = "_regEvents"
	keyTextData    = "_tiData"
	keyTextDoc     = "_tiD"
)

// Event is one inbound notification routed to observers.
type Event struct {
	// Type is the _t tag, or one of the synthetic lifecycle names.
	Type string

	// Payload is the decoded OPACK map. Nil for synthetic events.
	Payload map[string]any
}

// FocusState tracks whether a text field has focus on the device.
type FocusState int

const (
	// Unfocused means no text field is active; text operations return
	// ErrNotFocused.
	Unfocused FocusState = iota

	// Focused means the device reported an active text field.
	Focused
)

// String returns the focus state name.
func (f FocusState) String() string {
	if f == Focused {
		return "Focused"
	}
	return "Unfocused"
}

// Subscription is a registered event observer; Cancel stops delivery.
type Subscription struct {
	session *Session
	id      int
}

// Cancel removes the observer. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.session == nil {
		return
	}
	s.session.mu.Lock()
	delete(s.session.observers, s.id)
	s.session.mu.Unlock()
	s.session = nil
}
