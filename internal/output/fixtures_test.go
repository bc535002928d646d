package output

// rampRenderer emits a predictable stereo ramp and counts rendered frames
type rampRenderer struct {
	rate     int
	channels int
	frames   int64
	calls    int
}

func newRampRenderer() *rampRenderer {
	return &rampRenderer{rate: 48000, channels: 2}
}

func rampValue(frame int64) float32 {
	return float32(frame%100) / 200
}

func (r *rampRenderer) Render(out []float32) {
	r.calls++
	for i := 0; i < len(out); i += r.channels {
		v := rampValue(r.frames)
		out[i] = v
		if r.channels > 1 {
			out[i+1] = -v
		}
		r.frames++
	}
}

func (r *rampRenderer) SampleRate() int { return r.rate }
func (r *rampRenderer) Channels() int   { return r.channels }

// fakeBackend records its lifecycle for factory tests
type fakeBackend struct {
	name    string
	started bool
	closed  bool
	vol     float32
}

func (f *fakeBackend) Start(Renderer) error {
	f.started = true
	return nil
}

func (f *fakeBackend) Stop() error {
	f.started = false
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func (f *fakeBackend) IsPlaying() bool { return f.started }

func (f *fakeBackend) SetVolume(v float32) error {
	if err := checkVolume(v); err != nil {
		return err
	}
	f.vol = v
	return nil
}

func (f *fakeBackend) GetVolume() float32 { return f.vol }
func (f *fakeBackend) Name() string       { return f.name }
