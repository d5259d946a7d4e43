// Package backends implements the outbound ticket-system adapters and the
// registry that selects one by a tenant's configured backend type.
package backends

import (
	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

// Registry holds the available ticket backend adapters keyed by type.
type Registry struct {
	adapters map[model.BackendType]core.TicketBackendAdapter
}

// NewRegistry builds a registry from the given adapters. Later entries with
// the same type replace earlier ones.
func NewRegistry(adapters ...core.TicketBackendAdapter) *Registry {
	r := &Registry{adapters: make(map[model.BackendType]core.TicketBackendAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Type()] = a
	}
	return r
}

// Resolve returns the adapter for the backend type. An unknown type is a
// permanent error; retrying cannot fix tenant misconfiguration.
func (r *Registry) Resolve(backendType model.BackendType) (core.TicketBackendAdapter, error) {
	adapter, ok := r.adapters[backendType]
	if !ok {
		return nil, apperrors.PermanentAdapterf("no adapter registered for backend type %q", backendType)
	}
	return adapter, nil
}
