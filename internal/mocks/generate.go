// Package mocks provides mock implementations for testing the enhancement
// orchestration engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the core repository and adapter interfaces. The mocks are generated using
// go:generate directives and provide a fluent API for setting up test
// expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockAdapter := mocks.NewMockTicketBackendAdapter(ctrl)
//	mockAdapter.EXPECT().UpdateTicket(gomock.Any(), gomock.Any()).Return(result, nil)
package mocks

// Generate mock for TicketBackendAdapter interface from internal/core package.
// This creates MockTicketBackendAdapter with methods: Type, UpdateTicket
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=ticket_backend_adapter_mock.go github.com/ticketwise/enhancer/internal/core TicketBackendAdapter

// Generate mock for TenantRepository interface from internal/core package.
// This creates MockTenantRepository with methods: GetByID
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=tenant_repository_mock.go github.com/ticketwise/enhancer/internal/core TenantRepository
