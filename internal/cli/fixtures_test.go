package cli

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"auralis.click/internal/output"
)

var testTime = time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)

// writeTone stores a mono 16-bit 440 Hz sine of the given length at path
func writeTone(t *testing.T, fs afero.Fs, path string, rate int, amp, seconds float64) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	f, err := fs.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := amp * math.Sin(2*math.Pi*440*float64(n)/float64(rate))
			samples[i] = [2]float64{v, v}
			n++
		}
		return len(samples), true
	})
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Take(int(seconds*float64(rate)), tone), format))
}

// readStereo decodes a WAV file into per-channel peak levels
func readStereo(t *testing.T, fs afero.Fs, path string) (frames int, peakL, peakR float64) {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()

	s, format, err := wav.Decode(f)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 2, format.NumChannels)

	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for _, fr := range buf[:n] {
			peakL = math.Max(peakL, math.Abs(fr[0]))
			peakR = math.Max(peakR, math.Abs(fr[1]))
		}
		if !ok {
			break
		}
	}
	return s.Len(), peakL, peakR
}

// fakeDevice is an output.Backend that pulls one period on Start
type fakeDevice struct {
	started  bool
	stopped  bool
	closed   bool
	rendered int
	volume   float32
}

func (d *fakeDevice) Start(r output.Renderer) error {
	buf := make([]float32, 256*r.Channels())
	r.Render(buf)
	d.rendered += 256
	d.started = true
	return nil
}

func (d *fakeDevice) Stop() error {
	d.stopped = true
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) IsPlaying() bool { return d.started && !d.stopped }

func (d *fakeDevice) SetVolume(v float32) error {
	d.volume = v
	return nil
}

func (d *fakeDevice) GetVolume() float32 { return d.volume }

func (d *fakeDevice) Name() string { return output.BackendMalgo }

// runCLI executes one command on fs and returns exit code and output
func runCLI(t *testing.T, fs afero.Fs, setup func(*CLI), args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cli := NewCLIWithFilesystem(fs)
	if setup != nil {
		setup(cli)
	}
	code := cli.Run(append([]string{"auralis"}, args...), nil, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}
