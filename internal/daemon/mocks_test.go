package daemon

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// fakeTask is a task queued on fakeScheduler.
type fakeTask struct {
	delay    time.Duration
	fn       func()
	canceled bool
}

func (t *fakeTask) Cancel() { t.canceled = true }

// fakeScheduler records scheduled tasks; tests run them explicitly.
type fakeScheduler struct {
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) domain.Cancelable {
	t := &fakeTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// runNext runs the oldest live task and returns its delay.
func (s *fakeScheduler) runNext() (time.Duration, bool) {
	for len(s.tasks) > 0 {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		if t.canceled {
			continue
		}
		t.fn()
		return t.delay, true
	}
	return 0, false
}

// live returns the tasks that are still scheduled.
func (s *fakeScheduler) live() []*fakeTask {
	var out []*fakeTask
	for _, t := range s.tasks {
		if !t.canceled {
			out = append(out, t)
		}
	}
	return out
}

// fakeDriver records light writes.
type fakeDriver struct {
	mu     sync.Mutex
	writes []uint32
	err    error
}

func (d *fakeDriver) SetLight(ch domain.LightChannel, color uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, color)
	return d.err
}

func (d *fakeDriver) last() (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writes) == 0 {
		return 0, false
	}
	return d.writes[len(d.writes)-1], true
}

func (d *fakeDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

// fakeWakeLock tracks hold state.
type fakeWakeLock struct {
	mu       sync.Mutex
	held     bool
	timeout  time.Duration
	acquires int
	releases int
}

func (w *fakeWakeLock) Acquire(timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = true
	w.timeout = timeout
	w.acquires++
}

func (w *fakeWakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held {
		w.releases++
	}
	w.held = false
}

func (w *fakeWakeLock) IsHeld() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

// fakePower hands out one shared fakeWakeLock.
type fakePower struct {
	lock     *fakeWakeLock
	screenOn bool
}

func newFakePower(screenOn bool) *fakePower {
	return &fakePower{lock: &fakeWakeLock{}, screenOn: screenOn}
}

func (p *fakePower) NewWakeLock(tag string) domain.WakeLock { return p.lock }
func (p *fakePower) IsScreenOn() bool                       { return p.screenOn }

// fakeCapturer returns a fixed frame.
type fakeCapturer struct {
	img      image.Image
	err      error
	maxLayer int
	block    chan struct{}
}

func (c *fakeCapturer) Capture(ctx context.Context, maxLayer int) (image.Image, error) {
	c.maxLayer = maxLayer
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.img, nil
}

// fakeChannel is a scripted companion channel. reply decides the
// companion's answer to each sent message; nil means no answer.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []domain.CompanionMessage
	replies chan domain.CompanionMessage
	reply   func(n int, msg domain.CompanionMessage) *domain.CompanionMessage
	closed  bool
	sendErr error
}

func newFakeChannel(reply func(n int, msg domain.CompanionMessage) *domain.CompanionMessage) *fakeChannel {
	return &fakeChannel{
		replies: make(chan domain.CompanionMessage, 64),
		reply:   reply,
	}
}

func ackAll(int, domain.CompanionMessage) *domain.CompanionMessage {
	return &domain.CompanionMessage{Kind: domain.MsgAck}
}

func (c *fakeChannel) Send(ctx context.Context, msg domain.CompanionMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	data := append([]byte(nil), msg.Data...)
	c.sent = append(c.sent, domain.CompanionMessage{Kind: msg.Kind, Data: data})
	if c.reply != nil {
		if r := c.reply(len(c.sent)-1, msg); r != nil {
			c.replies <- *r
		}
	}
	return nil
}

func (c *fakeChannel) Replies() <-chan domain.CompanionMessage { return c.replies }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) messages() []domain.CompanionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CompanionMessage(nil), c.sent...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeConnector binds to a single fakeChannel.
type fakeConnector struct {
	ch        *fakeChannel
	err       error
	component string
	binds     int
}

func (c *fakeConnector) Bind(ctx context.Context, component string) (domain.CompanionChannel, error) {
	c.component = component
	c.binds++
	if c.err != nil {
		return nil, c.err
	}
	return c.ch, nil
}

var errFake = errors.New("fake failure")

// memPrefs is an in-memory domain.PreferenceStore.
type memPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemPrefs(kv ...string) *memPrefs {
	p := &memPrefs{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		p.values[kv[i]] = kv[i+1]
	}
	return p
}

func (p *memPrefs) GetString(key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memPrefs) PutString(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *memPrefs) GetStringSet(key string) ([]string, error)      { return nil, nil }
func (p *memPrefs) PutStringSet(key string, values []string) error { return nil }
func (p *memPrefs) DeleteStringSet(key string) error               { return nil }
func (p *memPrefs) ListStringSets() ([]string, error)              { return nil, nil }
