package companion

import (
	"context"
	"time"
)

// Button gesture timing.
const (
	tapDwell    = 50 * time.Millisecond
	holdDwell   = time.Second
	doubleDelay = 100 * time.Millisecond
)

// SendKey performs a button gesture: a tap holds the button for 50 ms, a
// hold for 1 s, and a double tap runs two tap cycles 100 ms apart.
func (s *Session) SendKey(ctx context.Context, key Key, action KeyAction) error {
	if !key.IsValid() {
		return ErrInvalidCommand
	}

	switch action {
	case KeyActionTap:
		return s.pressRelease(ctx, key, tapDwell)
	case KeyActionHold:
		return s.pressRelease(ctx, key, holdDwell)
	case KeyActionDoubleTap:
		if err := s.pressRelease(ctx, key, tapDwell); err != nil {
			return err
		}
		if err := s.sleep(ctx, doubleDelay); err != nil {
			return err
		}
		return s.pressRelease(ctx, key, tapDwell)
	default:
		return s.pressRelease(ctx, key, tapDwell)
	}
}

// pressRelease sends the press event, dwells, and sends the release.
func (s *Session) pressRelease(ctx context.Context, key Key, dwell time.Duration) error {
	if err := s.sendEvent(map[string]any{
		keyButtonState: 1,
		keyHIDCode:     int(key),
	}); err != nil {
		return err
	}
	if err := s.sleep(ctx, dwell); err != nil {
		return err
	}
	return s.sendEvent(map[string]any{
		keyButtonState: 0,
		keyHIDCode:     int(key),
	})
}

// sleep waits for d, honouring cancellation and session close. Per the
// concurrency contract, cancellation at a suspension point tears the
// session down.
func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		s.teardown()
		return ctx.Err()
	case <-s.closeCh:
		return ErrClosed
	}
}

// SendMedia sends a media-control command with optional parameters.
func (s *Session) SendMedia(ctx context.Context, cmd MediaCommand, params map[string]any) error {
	if !cmd.IsValid() {
		return ErrInvalidCommand
	}

	payload := map[string]any{keyMediaCode: int(cmd)}
	for k, v := range params {
		payload[k] = v
	}
	return s.sendEvent(payload)
}

// RegisterInterest subscribes the session to the named device events.
func (s *Session) RegisterInterest(ctx context.Context, events ...string) error {
	names := make([]any, len(events))
	for i, e := range events {
		names[i] = e
	}
	return s.sendEvent(map[string]any{
		keyType:      EventInterest,
		keyRegEvents: names,
	})
}

// GetText returns the focused text field's current content. Returns
// ErrNotFocused when no field has focus; the session is unaffected.
func (s *Session) GetText(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return "", ErrClosed
	}
	if s.focus != Focused {
		return "", ErrNotFocused
	}
	return s.text, nil
}

// SetText edits the focused text field. clear replaces the field content;
// otherwise text is appended. Returns ErrNotFocused without emitting a
// frame when no field has focus.
func (s *Session) SetText(ctx context.Context, text string, clear bool) error {
	s.mu.Lock()
	focused := s.focus == Focused
	closed := s.state == StateClosed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !focused {
		return ErrNotFocused
	}

	return s.sendEvent(map[string]any{
		keyType: requestTextInput,
		keyTextData: map[string]any{
			"text":  text,
			"clear": clear,
		},
	})
}
