package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoDevice = errors.New("no device")

func fakeConstructors(available ...string) map[string]func() (Backend, error) {
	ctors := make(map[string]func() (Backend, error))
	for _, name := range []string{BackendMalgo, BackendOto} {
		ok := false
		for _, a := range available {
			ok = ok || a == name
		}
		ctors[name] = func() (Backend, error) {
			if !ok {
				return nil, errNoDevice
			}
			return &fakeBackend{name: name, vol: 1}, nil
		}
	}
	return ctors
}

func TestBackendFactory_CreateBackend(t *testing.T) {
	tests := []struct {
		name        string
		backendType string
		isWSL       bool
		available   []string
		expected    string
		expectError error
	}{
		{"auto native prefers malgo", "auto", false, []string{"malgo", "oto"}, "malgo", nil},
		{"auto WSL prefers oto", "auto", true, []string{"malgo", "oto"}, "oto", nil},
		{"auto falls back to oto", "auto", false, []string{"oto"}, "oto", nil},
		{"auto WSL falls back to malgo", "auto", true, []string{"malgo"}, "malgo", nil},
		{"auto with nothing available", "auto", false, nil, "", ErrBackendCreationFailed},
		{"empty defaults to auto", "", false, []string{"malgo"}, "malgo", nil},
		{"explicit oto", "oto", false, []string{"malgo", "oto"}, "oto", nil},
		{"explicit malgo under WSL", "malgo", true, []string{"malgo", "oto"}, "malgo", nil},
		{"explicit backend unavailable", "malgo", false, []string{"oto"}, "", errNoDevice},
		{"invalid backend type", "pulse", false, []string{"malgo"}, "", ErrInvalidBackendType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := NewBackendFactoryWithDependencies(
				func() bool { return tt.isWSL },
				fakeConstructors(tt.available...),
			)

			backend, err := factory.CreateBackend(tt.backendType)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, backend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, backend.Name())
		})
	}
}

func TestBackendFactory_MissingConstructor(t *testing.T) {
	factory := NewBackendFactoryWithDependencies(func() bool { return false }, nil)

	_, err := factory.CreateBackend("oto")
	assert.ErrorIs(t, err, ErrBackendNotAvailable)
}

func TestBackendFactory_GetSupportedBackends(t *testing.T) {
	factory := NewBackendFactory()
	assert.Equal(t, []string{"auto", "malgo", "oto"}, factory.GetSupportedBackends())
}

func TestBackendFactory_IsValidBackendType(t *testing.T) {
	factory := NewBackendFactory()

	for _, name := range []string{"", "auto", "malgo", "oto"} {
		assert.True(t, factory.IsValidBackendType(name), name)
	}
	for _, name := range []string{"system_command", "AUTO", "alsa"} {
		assert.False(t, factory.IsValidBackendType(name), name)
	}
}

func TestFakeBackendLifecycle(t *testing.T) {
	var b Backend = &fakeBackend{name: "fake", vol: 1}

	require.NoError(t, b.Start(newRampRenderer()))
	assert.True(t, b.IsPlaying())
	assert.ErrorIs(t, b.SetVolume(2), ErrInvalidVolume)
	require.NoError(t, b.SetVolume(0.3))
	assert.Equal(t, float32(0.3), b.GetVolume())
	require.NoError(t, b.Stop())
	assert.False(t, b.IsPlaying())
}
