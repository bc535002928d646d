package audio

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryLoadAndShare(t *testing.T) {
	fs := afero.NewMemMapFs()
	data, _ := rampWAV(64, 44100, 10)
	require.NoError(t, afero.WriteFile(fs, "/assets/rain.wav", data, 0644))

	lib := NewLibrary(fs, nil, nil, "/assets")

	s, err := lib.Load("rain.wav")
	require.NoError(t, err)
	assert.Equal(t, "rain.wav", s.Name())
	assert.Equal(t, int64(64), s.Frames())

	again, err := lib.Load("/assets/rain.wav")
	require.NoError(t, err)
	assert.Same(t, s, again)

	got, ok := lib.Get("rain.wav")
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, []string{"rain.wav"}, lib.Names())
}

func TestLibrarySearchesRootsInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	first, _ := rampWAV(10, 44100, 10)
	second, _ := rampWAV(20, 44100, 10)
	require.NoError(t, afero.WriteFile(fs, "/b/x.wav", second, 0644))

	lib := NewLibrary(fs, nil, nil, "/a", "/b")
	s, err := lib.Load("x.wav")
	require.NoError(t, err)
	assert.Equal(t, int64(20), s.Frames())

	require.NoError(t, afero.WriteFile(fs, "/a/y.wav", first, 0644))
	require.NoError(t, afero.WriteFile(fs, "/b/y.wav", second, 0644))
	s, err = lib.Load("y.wav")
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.Frames())
}

func TestLibraryMissingAssetIsSilentAndReported(t *testing.T) {
	lib := NewLibrary(afero.NewMemMapFs(), nil, nil, "/a", "/b")

	var reported []string
	lib.SetFailureHook(func(name, path string, err error) {
		reported = append(reported, name)
	})

	s, err := lib.Load("missing.wav")
	require.Error(t, err)
	assert.True(t, IsFileNotFoundError(err))
	assert.Contains(t, err.Error(), "/a/missing.wav")
	require.NotNil(t, s)
	assert.Equal(t, int64(0), s.Frames())
	assert.Equal(t, []string{"missing.wav"}, reported)

	_, ok := lib.Get("missing.wav")
	assert.True(t, ok)
}

func TestLibraryCorruptAssetIsSilentAndReported(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "broken.wav", []byte("RIFF....nope"), 0644))

	lib := NewLibrary(fs, nil, nil)
	calls := 0
	lib.SetFailureHook(func(name, path string, err error) { calls++ })

	s, err := lib.Load("broken.wav")
	require.Error(t, err)
	assert.False(t, IsFileNotFoundError(err))
	assert.Equal(t, int64(0), s.Frames())
	assert.Equal(t, 1, calls)
}

func TestLibraryUnload(t *testing.T) {
	fs := afero.NewMemMapFs()
	data, _ := rampWAV(16, 44100, 10)
	require.NoError(t, afero.WriteFile(fs, "tone.wav", data, 0644))

	lib := NewLibrary(fs, nil, nil)
	s, err := lib.Load("tone.wav")
	require.NoError(t, err)

	assert.True(t, lib.Unload("tone.wav"))
	assert.False(t, lib.Unload("tone.wav"))
	assert.Empty(t, lib.Names())

	out := []float32{1, 1}
	s.Sample(0, 2, 0, out, 1, false)
	assert.Equal(t, []float32{0, 0}, out)
}
