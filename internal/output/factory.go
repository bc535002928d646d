package output

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Backend names accepted by the factory
const (
	BackendAuto  = "auto"
	BackendMalgo = "malgo"
	BackendOto   = "oto"
)

// Factory errors
var (
	ErrInvalidBackendType    = errors.New("invalid backend type")
	ErrBackendCreationFailed = errors.New("backend creation failed")
)

// BackendFactory creates Backend instances based on configuration
type BackendFactory interface {
	CreateBackend(backendType string) (Backend, error)
	GetSupportedBackends() []string
	IsValidBackendType(backendType string) bool
}

// DefaultBackendFactory implements BackendFactory with platform detection
type DefaultBackendFactory struct {
	isWSLFunc    func() bool
	constructors map[string]func() (Backend, error)
}

// NewBackendFactory creates a factory with real platform detection and the
// device backends compiled into this binary
func NewBackendFactory() *DefaultBackendFactory {
	return &DefaultBackendFactory{
		isWSLFunc: IsWSL,
		constructors: map[string]func() (Backend, error){
			BackendMalgo: func() (Backend, error) { return NewMalgoBackend() },
			BackendOto:   func() (Backend, error) { return NewOtoBackend() },
		},
	}
}

// NewBackendFactoryWithDependencies creates a factory with injected
// dependencies for testing
func NewBackendFactoryWithDependencies(isWSLFunc func() bool, constructors map[string]func() (Backend, error)) *DefaultBackendFactory {
	return &DefaultBackendFactory{
		isWSLFunc:    isWSLFunc,
		constructors: constructors,
	}
}

// CreateBackend creates a Backend instance based on the specified type
func (f *DefaultBackendFactory) CreateBackend(backendType string) (Backend, error) {
	if backendType == "" {
		backendType = BackendAuto
	}

	slog.Debug("creating audio backend", "type", backendType)

	switch backendType {
	case BackendAuto:
		return f.createAutoBackend()
	case BackendMalgo, BackendOto:
		return f.create(backendType)
	default:
		slog.Error("invalid backend type requested", "type", backendType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
}

// GetSupportedBackends returns a list of all supported backend types
func (f *DefaultBackendFactory) GetSupportedBackends() []string {
	return []string{BackendAuto, BackendMalgo, BackendOto}
}

// IsValidBackendType checks if a backend type is supported
func (f *DefaultBackendFactory) IsValidBackendType(backendType string) bool {
	if backendType == "" {
		return true
	}
	return slices.Contains(f.GetSupportedBackends(), backendType)
}

// createAutoBackend tries the platform's preferred backend first and falls
// back to the other one
func (f *DefaultBackendFactory) createAutoBackend() (Backend, error) {
	preferred := detectOptimalBackend(f.isWSLFunc())
	fallback := BackendOto
	if preferred == BackendOto {
		fallback = BackendMalgo
	}

	backend, err := f.create(preferred)
	if err == nil {
		return backend, nil
	}
	slog.Warn("preferred backend unavailable, trying fallback", "preferred", preferred, "fallback", fallback, "error", err)

	backend, ferr := f.create(fallback)
	if ferr != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendCreationFailed, errors.Join(err, ferr))
	}
	return backend, nil
}

func (f *DefaultBackendFactory) create(backendType string) (Backend, error) {
	ctor, ok := f.constructors[backendType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotAvailable, backendType)
	}
	backend, err := ctor()
	if err != nil {
		slog.Error("failed to create backend", "type", backendType, "error", err)
		return nil, err
	}
	slog.Debug("backend created successfully", "type", backendType)
	return backend, nil
}
