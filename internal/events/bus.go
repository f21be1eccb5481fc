package events

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// Message is what handlers receive.
type Message struct {
	Type    MessageType
	Payload any
}

// Handler reacts to a message. A returned error is reported like a panic.
type Handler func(Message) error

// ErrorHandler is told about every failing handler.
type ErrorHandler func(t MessageType, err error)

// HandlerError wraps the failure of one handler invocation.
type HandlerError struct {
	Type  MessageType
	Index int // registration position among the handlers of Type
	Err   error
	Stack []byte // set when the handler panicked
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler #%d: %v", e.Type, e.Index, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ErrHandlerPanic marks a handler that panicked.
var ErrHandlerPanic = errors.New("handler panicked")

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the synchronous publish/subscribe router of one simulation.
// Handlers run in registration order within the Notify call. A failing
// handler never prevents its siblings from running.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[MessageType][]subscription
	onError  ErrorHandler
	counter  func(MessageType)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[MessageType][]subscription)}
}

// OnError installs the callback told about failing handlers.
func (b *Bus) OnError(fn ErrorHandler) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// OnPublish installs a callback invoked once per Notify, before fan-out.
func (b *Bus) OnPublish(fn func(MessageType)) {
	b.mu.Lock()
	b.counter = fn
	b.mu.Unlock()
}

// Subscription removes the handlers registered by one Observe call.
type Subscription struct {
	bus   *Bus
	id    uint64
	types []MessageType
}

// Unsubscribe detaches the handler. Calling it twice is harmless.
func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for _, t := range s.types {
		subs := s.bus.handlers[t]
		for i, sub := range subs {
			if sub.id == s.id {
				s.bus.handlers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Observe registers handler for every listed type.
func (b *Bus) Observe(handler Handler, types ...MessageType) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: handler})
	}
	return Subscription{bus: b, id: id, types: append([]MessageType(nil), types...)}
}

// ObserveFunc registers a handler that cannot fail.
func (b *Bus) ObserveFunc(fn func(Message), types ...MessageType) Subscription {
	return b.Observe(func(m Message) error {
		fn(m)
		return nil
	}, types...)
}

// Notify delivers a message to every handler of its type, in registration
// order. Panics and errors are isolated per handler, reported to the
// error callback and returned joined.
func (b *Bus) Notify(t MessageType, payload any) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[t]...)
	onError := b.onError
	counter := b.counter
	b.mu.RUnlock()

	if counter != nil {
		counter(t)
	}

	msg := Message{Type: t, Payload: payload}
	var errs []error
	for i, sub := range subs {
		if err := invoke(sub.handler, msg, i); err != nil {
			if onError != nil {
				onError(t, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func invoke(h Handler, msg Message, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				Type:  msg.Type,
				Index: index,
				Err:   fmt.Errorf("%w: %v", ErrHandlerPanic, r),
				Stack: debug.Stack(),
			}
		}
	}()
	if herr := h(msg); herr != nil {
		return &HandlerError{Type: msg.Type, Index: index, Err: herr}
	}
	return nil
}
