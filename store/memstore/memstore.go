/*Package memstore is an in-process implementation of store.Store: a
key/value map, a set of bounded timeseries ring buffers, and a
channel-based publish/subscribe fanout, guarded by a single RWMutex.

It mirrors the operations of pcredis.PCRedis (store/read/publish/listen/
create_ts_keys) from the picturec control stack this module's domain is
drawn from, backed by github.com/brandondube/ringo ring buffers for
timeseries storage the way envsrv.Envmon caches telemetry windows in the
teacher repo.
*/
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/brandondube/ringo"

	"github.com/nasa-jpl/adrctl/store"
)

// DefaultWindow is the number of samples retained per timeseries key when
// none is specified.
const DefaultWindow = 4096

type timeseries struct {
	vals ringo.CircleF64
	ts   ringo.CircleTime
}

func newTimeseries(window int) *timeseries {
	ts := &timeseries{}
	ts.vals.Init(window)
	ts.ts.Init(window)
	return ts
}

func (t *timeseries) add(at time.Time, v float64) {
	t.vals.Append(v)
	t.ts.Append(at)
}

func (t *timeseries) samples() []store.Sample {
	vals := t.vals.Contiguous()
	times := t.ts.Contiguous()
	n := len(vals)
	if len(times) < n {
		n = len(times)
	}
	out := make([]store.Sample, 0, n)
	for i := 0; i < n; i++ {
		ms := times[i].UnixMilli()
		out = append(out, store.Sample{TimeMS: ms, Value: vals[i], Clock: store.Clock(ms)})
	}
	return out
}

// Store is a concrete, in-process store.Store.
type Store struct {
	mu   sync.RWMutex
	kv   map[string]string
	ts   map[string]*timeseries
	subs map[string][]chan store.Message

	// window is the per-key ring buffer capacity for new timeseries keys.
	window int
}

// New returns a ready-to-use Store. window sizes every timeseries created
// with CreateTS; pass 0 for DefaultWindow.
func New(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		kv:     make(map[string]string),
		ts:     make(map[string]*timeseries),
		subs:   make(map[string][]chan store.Message),
		window: window,
	}
}

// Set implements store.Store.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.kv[key] = value
	s.mu.Unlock()
	return s.Publish(key, value, false)
}

// Get implements store.Store.
func (s *Store) Get(key string, errMissing bool) (string, bool, error) {
	s.mu.RLock()
	v, ok := s.kv[key]
	s.mu.RUnlock()
	if !ok && errMissing {
		return "", false, fmtMissing(key)
	}
	return v, ok, nil
}

// Read implements store.Store.
func (s *Store) Read(keys []string, errMissing bool) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		v, ok := s.kv[k]
		if !ok {
			if errMissing {
				return nil, fmtMissing(k)
			}
			continue
		}
		out[k] = v
	}
	return out, nil
}

// CreateTS implements store.Store. Idempotent per spec §8.
func (s *Store) CreateTS(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ts[key]; ok {
		return nil
	}
	s.ts[key] = newTimeseries(s.window)
	return nil
}

// AddTS implements store.Store.
func (s *Store) AddTS(key string, value float64) error {
	s.mu.Lock()
	t, ok := s.ts[key]
	if !ok {
		s.mu.Unlock()
		return store.ErrNoSuchTimeseries
	}
	t.add(time.Now(), value)
	s.mu.Unlock()
	return nil
}

// GetTS implements store.Store.
func (s *Store) GetTS(key string) (store.Sample, bool, error) {
	s.mu.RLock()
	t, ok := s.ts[key]
	s.mu.RUnlock()
	if !ok {
		return store.Sample{}, false, store.ErrNoSuchTimeseries
	}
	samples := t.samples()
	if len(samples) == 0 {
		return store.Sample{}, false, nil
	}
	return samples[len(samples)-1], true, nil
}

// RangeTS implements store.Store.
func (s *Store) RangeTS(key string, fromMS, toMS int64) ([]store.Sample, error) {
	s.mu.RLock()
	t, ok := s.ts[key]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNoSuchTimeseries
	}
	all := t.samples()
	out := make([]store.Sample, 0, len(all))
	for _, sm := range all {
		if sm.TimeMS >= fromMS && sm.TimeMS <= toMS {
			out = append(out, sm)
		}
	}
	return out, nil
}

// Publish implements store.Store.
func (s *Store) Publish(channel, value string, persist bool) error {
	if persist {
		s.mu.Lock()
		s.kv[channel] = value
		s.mu.Unlock()
	}
	msg := store.Message{Channel: channel, Value: value}
	// sends are non-blocking, so holding the read lock across them is
	// cheap, and it keeps a concurrent cancel from closing a channel
	// mid-send.
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs[channel] {
		select {
		case ch <- msg:
		default:
			// slow subscriber; drop rather than block the publisher,
			// matching the accepted race in spec §3.
		}
	}
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(channels ...string) (<-chan store.Message, func()) {
	out := make(chan store.Message, 64)
	s.mu.Lock()
	for _, c := range channels {
		s.subs[c] = append(s.subs[c], out)
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			for _, c := range channels {
				s.subs[c] = removeChan(s.subs[c], out)
			}
			s.mu.Unlock()
			close(out)
		})
	}
	return out, cancel
}

// Listen implements store.Store.
func (s *Store) Listen(ctx context.Context, channels ...string) <-chan store.Message {
	src, cancel := s.Subscribe(channels...)
	out := make(chan store.Message)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func removeChan(chans []chan store.Message, target chan store.Message) []chan store.Message {
	out := chans[:0]
	for _, c := range chans {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

func fmtMissing(key string) error {
	return &missingError{key: key}
}

type missingError struct{ key string }

func (e *missingError) Error() string { return "store: key missing: " + e.key }

func (e *missingError) Unwrap() error { return store.ErrMissing }
