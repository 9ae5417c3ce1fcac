package failure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/streamkeeper/internal/core/domain"
)

var (
	// ErrUnknownReceiver is returned when a receiver name is not registered
	ErrUnknownReceiver = errors.New("unknown receiver")
	// ErrDuplicateReceiver is returned when a name is registered twice
	ErrDuplicateReceiver = errors.New("receiver already registered")
)

// Receiver handles a message during normal or retried delivery.
type Receiver interface {
	Handle(ctx context.Context, msg *domain.Message) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, msg *domain.Message) error

func (f ReceiverFunc) Handle(ctx context.Context, msg *domain.Message) error {
	return f(ctx, msg)
}

// ReceiverFactory builds a receiver instance.
type ReceiverFactory func() Receiver

// Registry maps receiver names, as recorded in failure records, to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ReceiverFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ReceiverFactory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory ReceiverFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("receiver name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateReceiver, name)
	}
	r.factories[name] = factory
	return nil
}

// RegisterReceiver registers a shared receiver instance under name.
func (r *Registry) RegisterReceiver(name string, receiver Receiver) error {
	if receiver == nil {
		return fmt.Errorf("receiver %s is nil", name)
	}
	return r.Register(name, func() Receiver { return receiver })
}

// Resolve builds the receiver registered under name.
func (r *Registry) Resolve(name string) (Receiver, bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	receiver := factory()
	if receiver == nil {
		return nil, false
	}
	return receiver, true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
