package util

import (
	"fmt"
	"sync"

	"AlertDesk/pkg/logger"

	"go.uber.org/zap"
)

// SigHandler receives the object that triggered the signal.
type SigHandler func(sender any, params ...any)

// Signals is a synchronous in-process event dispatcher.
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SigHandler
}

var (
	sigOnce sync.Once
	sig     *Signals
)

// Sig returns the process-wide dispatcher.
func Sig() *Signals {
	sigOnce.Do(func() {
		sig = NewSignals()
	})
	return sig
}

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SigHandler)}
}

func (s *Signals) Connect(event string, handler SigHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

// Emit runs every handler connected to event in registration order. A
// panicking handler is logged and does not stop the others.
func (s *Signals) Emit(event string, sender any, params ...any) {
	s.mu.RLock()
	handlers := make([]SigHandler, len(s.handlers[event]))
	copy(handlers, s.handlers[event])
	s.mu.RUnlock()

	for _, h := range handlers {
		s.call(event, h, sender, params...)
	}
}

func (s *Signals) call(event string, h SigHandler, sender any, params ...any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("signal handler panic", zap.String("event", event), zap.String("panic", fmt.Sprint(r)))
		}
	}()
	h(sender, params...)
}

// Disconnect drops all handlers for the given events, or every handler when none are given.
func (s *Signals) Disconnect(events ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(events) == 0 {
		s.handlers = make(map[string][]SigHandler)
		return
	}
	for _, e := range events {
		delete(s.handlers, e)
	}
}
