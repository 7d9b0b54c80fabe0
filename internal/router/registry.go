// Package router dispatches parsed inbound envelopes to the registered
// handlers, the event-source plumbing, or the request correlator, and
// sends the produced replies back to the engine.
package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stagecraft/stagehand/pkg/handler"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Registry holds the named handlers of all three kinds, keyed by name
// within each kind.
type Registry struct {
	mu           sync.RWMutex
	transactions map[string]handler.TransactionProcessor
	sources      map[string]handler.EventSource
	processors   map[string]handler.EventProcessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transactions: make(map[string]handler.TransactionProcessor),
		sources:      make(map[string]handler.EventSource),
		processors:   make(map[string]handler.EventProcessor),
	}
}

// AddTransactionHandler registers a transaction processor under name.
func (r *Registry) AddTransactionHandler(name string, p handler.TransactionProcessor) error {
	if name == "" {
		return fmt.Errorf("transaction handler name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("transaction handler %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transactions[name]; exists {
		return fmt.Errorf("transaction handler %q already registered", name)
	}
	r.transactions[name] = p
	return nil
}

// AddEventSource registers an event source under name.
func (r *Registry) AddEventSource(name string, s handler.EventSource) error {
	if name == "" {
		return fmt.Errorf("event source name must not be empty")
	}
	if s == nil {
		return fmt.Errorf("event source %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("event source %q already registered", name)
	}
	r.sources[name] = s
	return nil
}

// AddEventProcessor registers an event processor under name.
func (r *Registry) AddEventProcessor(name string, p handler.EventProcessor) error {
	if name == "" {
		return fmt.Errorf("event processor name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("event processor %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[name]; exists {
		return fmt.Errorf("event processor %q already registered", name)
	}
	r.processors[name] = p
	return nil
}

// TransactionHandler looks up a transaction processor by name.
func (r *Registry) TransactionHandler(name string) (handler.TransactionProcessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.transactions[name]
	return p, ok
}

// EventSource looks up an event source by name.
func (r *Registry) EventSource(name string) (handler.EventSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// EventProcessor looks up an event processor by name.
func (r *Registry) EventProcessor(name string) (handler.EventProcessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	return p, ok
}

// Registrations returns one register_handler frame per registered
// handler, in a stable order, for replay on every (re)connect.
func (r *Registry) Registrations() []*wire.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var frames []*wire.Envelope
	for name := range r.transactions {
		frames = append(frames, &wire.Envelope{
			MessageType: wire.MsgRegisterHandler,
			Handler:     name,
			HandlerType: wire.HandlerTypeTransaction,
		})
	}
	for name := range r.sources {
		frames = append(frames, &wire.Envelope{
			MessageType: wire.MsgRegisterHandler,
			Handler:     name,
			HandlerType: wire.HandlerTypeEventSource,
		})
	}
	for name := range r.processors {
		frames = append(frames, &wire.Envelope{
			MessageType: wire.MsgRegisterHandler,
			Handler:     name,
			HandlerType: wire.HandlerTypeEventProcessor,
		})
	}
	sort.Slice(frames, func(i, j int) bool {
		if frames[i].HandlerType != frames[j].HandlerType {
			return frames[i].HandlerType < frames[j].HandlerType
		}
		return frames[i].Handler < frames[j].Handler
	})
	return frames
}
