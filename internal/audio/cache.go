package audio

import (
	"log/slog"
	"math/bits"
	"sync/atomic"
)

const (
	// DefaultWindowFrames is the stereo frame capacity of one pooled window
	DefaultWindowFrames = 8192
	// DefaultPoolSlots bounds the number of pooled windows
	DefaultPoolSlots = 64
	// DefaultIdleExpiry is the number of ticks an opened asset may go
	// unreferenced before its decode handle is closed
	DefaultIdleExpiry = 512
)

// CacheConfig sizes a BufferCache
type CacheConfig struct {
	Slots        int    // pool ceiling
	WindowFrames int    // stereo frames per slot; mono assets get twice as many
	IdleExpiry   uint64 // ticks before an idle decode handle is closed
}

// CacheStats is a point-in-time copy of the cache counters
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	OutOfPool uint64
	Closed    uint64
}

type windowKey struct {
	sample *Sample
	index  int64
}

type slot struct {
	key      windowKey
	frames   int
	lastUsed uint64
}

// BufferCache is an arena of fixed-size decoded windows. Slots are indexed
// by handle and tracked with an in-use bitset; when every slot has been
// touched in the current tick the cache hands out an out-of-pool window
// that is dropped at the next Tick.
//
// A BufferCache is owned by the render thread. Only Stats may be called
// from elsewhere.
type BufferCache struct {
	slotSamples int
	data        []int16
	slots       []slot
	inUse       []uint64
	lookup      map[windowKey]int
	overflow    map[windowKey][]int16
	open        map[*Sample]uint64
	tick        uint64
	expiry      uint64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	outOfPool atomic.Uint64
	closed    atomic.Uint64
}

// NewBufferCache preallocates the whole arena
func NewBufferCache(cfg CacheConfig) *BufferCache {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultPoolSlots
	}
	if cfg.WindowFrames <= 0 {
		cfg.WindowFrames = DefaultWindowFrames
	}
	if cfg.IdleExpiry == 0 {
		cfg.IdleExpiry = DefaultIdleExpiry
	}

	c := &BufferCache{
		slotSamples: cfg.WindowFrames * 2,
		data:        make([]int16, cfg.Slots*cfg.WindowFrames*2),
		slots:       make([]slot, cfg.Slots),
		inUse:       make([]uint64, (cfg.Slots+63)/64),
		lookup:      make(map[windowKey]int, cfg.Slots),
		overflow:    make(map[windowKey][]int16),
		open:        make(map[*Sample]uint64),
		expiry:      cfg.IdleExpiry,
	}

	slog.Debug("buffer cache created",
		"slots", cfg.Slots,
		"window_frames", cfg.WindowFrames,
		"idle_expiry", cfg.IdleExpiry)

	return c
}

// SlotSamples is the int16 capacity of one window
func (c *BufferCache) SlotSamples() int { return c.slotSamples }

// Slots returns the pool ceiling
func (c *BufferCache) Slots() int { return len(c.slots) }

// InUse counts slots currently holding a window
func (c *BufferCache) InUse() int {
	n := 0
	for _, w := range c.inUse {
		n += bits.OnesCount64(w)
	}
	return n
}

// Tick starts a new render frame. Out-of-pool windows from the previous
// frame are released.
func (c *BufferCache) Tick() {
	c.tick++
	for k := range c.overflow {
		delete(c.overflow, k)
	}
}

// Expire closes the decode handles of assets that have not been touched for
// the configured number of ticks. Their decoded windows stay cached.
func (c *BufferCache) Expire() {
	for s, last := range c.open {
		if c.tick-last < c.expiry && !s.isClosed() {
			continue
		}
		s.closeStream()
		delete(c.open, s)
		c.closed.Add(1)
		if s.isClosed() {
			c.dropSample(s)
		}
	}
}

// Stats returns the counters
func (c *BufferCache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		OutOfPool: c.outOfPool.Load(),
		Closed:    c.closed.Load(),
	}
}

// window returns the decoded data of one window of s and its valid frame
// count, decoding on a miss
func (c *BufferCache) window(s *Sample, index int64) ([]int16, int) {
	key := windowKey{s, index}
	c.open[s] = c.tick

	if i, ok := c.lookup[key]; ok {
		c.hits.Add(1)
		c.slots[i].lastUsed = c.tick
		return c.slotData(i), c.slots[i].frames
	}
	if buf, ok := c.overflow[key]; ok {
		c.hits.Add(1)
		return buf, len(buf) / s.info.Channels
	}

	c.misses.Add(1)
	i := c.acquire()
	if i < 0 {
		c.outOfPool.Add(1)
		buf := make([]int16, c.slotSamples)
		frames := s.decodeWindow(index, buf)
		buf = buf[:frames*s.info.Channels]
		c.overflow[key] = buf
		return buf, frames
	}

	buf := c.slotData(i)
	frames := s.decodeWindow(index, buf)
	c.slots[i] = slot{key: key, frames: frames, lastUsed: c.tick}
	c.lookup[key] = i
	c.setInUse(i, true)
	return buf, frames
}

// acquire returns a free slot, evicting the least recently used window not
// touched in this tick. Returns -1 when the pool is exhausted.
func (c *BufferCache) acquire() int {
	for w, word := range c.inUse {
		if free := ^word; free != 0 {
			i := w*64 + bits.TrailingZeros64(free)
			if i < len(c.slots) {
				return i
			}
		}
	}

	victim := -1
	for i := range c.slots {
		if c.slots[i].lastUsed == c.tick {
			continue
		}
		if victim < 0 || c.slots[i].lastUsed < c.slots[victim].lastUsed {
			victim = i
		}
	}
	if victim < 0 {
		return -1
	}
	c.release(victim)
	c.evictions.Add(1)
	return victim
}

func (c *BufferCache) release(i int) {
	delete(c.lookup, c.slots[i].key)
	c.slots[i] = slot{}
	c.setInUse(i, false)
}

func (c *BufferCache) dropSample(s *Sample) {
	for i := range c.slots {
		if c.slots[i].key.sample == s {
			c.release(i)
		}
	}
	for k := range c.overflow {
		if k.sample == s {
			delete(c.overflow, k)
		}
	}
}

func (c *BufferCache) slotData(i int) []int16 {
	return c.data[i*c.slotSamples : (i+1)*c.slotSamples]
}

func (c *BufferCache) setInUse(i int, v bool) {
	if v {
		c.inUse[i/64] |= 1 << (uint(i) % 64)
	} else {
		c.inUse[i/64] &^= 1 << (uint(i) % 64)
	}
}
