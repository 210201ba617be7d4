package timeshift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tauraamui/dragondelay/pkg/camera"
	"github.com/tauraamui/dragondelay/pkg/delay"
	"github.com/tauraamui/dragondelay/pkg/dragon/process"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/video/framering"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const (
	DefaultMinTickInterval = 16.0
	DefaultRefreshRate     = 60
)

var (
	ErrCaptureUnavailable = errors.New("capture unavailable")
	ErrAlreadyRunning     = errors.New("delay scheduler is already running")
)

// Opener initialises the capture source for a new running session.
type Opener func(context.Context) (camera.Connection, error)

// Sink receives delayed frames. Emitted frames stay owned by the
// scheduler's buffer, a sink clones any frame it wants to keep.
type Sink interface {
	Bind(videoframe.Dimensions) error
	Emit(videoframe.Stamped) error
	Unbind() error
}

type Settings struct {
	Title string
	Open  Opener
	Sink  Sink
	// MaxFrames caps the frames retained, framering.DefaultMaxFrames when unset.
	MaxFrames int
	// MinTickInterval in milliseconds, ticks arriving sooner are skipped.
	MinTickInterval float64
	// RefreshRate is how many times a second the tick loop wakes up.
	RefreshRate int
	// Clock returns monotonic milliseconds. Defaults to time elapsed since New.
	Clock func() float64
	// OnStatus receives human readable status changes. It is called
	// from the tick loop and must not call back into the scheduler.
	OnStatus func(string)
}

type Stats struct {
	State     State
	Delay     float64
	Buffered  int
	Capacity  int
	Evicted   uint64
	Captured  uint64
	Emitted   uint64
	Failures  uint64
	Lookback  float64
	Degraded  bool
	Timestamp float64
}

// Scheduler replays frames captured delay seconds ago. It owns the
// frame buffer, the camera connection for the running session, the
// sink binding and the tick process which drives it all.
type Scheduler struct {
	lifecycle sync.Mutex
	mu        sync.Mutex
	statusMu  sync.Mutex

	title           string
	open            Opener
	sink            Sink
	clock           func() float64
	onStatus        func(string)
	minTickInterval float64
	tickInterval    time.Duration

	delay      *delay.Setting
	ring       *framering.Buffer
	state      State
	session    uint64
	conn       camera.Connection
	ticks      process.Process
	lastTick   float64
	failing    bool
	halting    bool
	stopping   bool
	degraded   bool
	lastStatus string

	captured, emitted, failures uint64
}

func New(settings Settings) *Scheduler {
	s := Scheduler{
		title:           settings.Title,
		open:            settings.Open,
		sink:            settings.Sink,
		clock:           settings.Clock,
		onStatus:        settings.OnStatus,
		minTickInterval: settings.MinTickInterval,
		delay:           delay.NewSetting(delay.Default),
		ring:            framering.New(settings.MaxFrames),
		state:           Idle,
	}

	if len(s.title) == 0 {
		s.title = "delayed"
	}
	if s.open == nil {
		s.open = func(context.Context) (camera.Connection, error) {
			return nil, xerror.New("no capture source configured")
		}
	}
	if s.sink == nil {
		s.sink = discard{}
	}
	if s.clock == nil {
		epoch := time.Now()
		s.clock = func() float64 {
			return float64(time.Since(epoch)) / float64(time.Millisecond)
		}
	}
	if s.minTickInterval <= 0 {
		s.minTickInterval = DefaultMinTickInterval
	}
	refreshRate := settings.RefreshRate
	if refreshRate <= 0 {
		refreshRate = DefaultRefreshRate
	}
	s.tickInterval = time.Second / time.Duration(refreshRate)

	return &s
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Delay() float64 {
	return s.delay.Get()
}

// SetDelay applies seconds clamped to the supported range and
// returns the value which was applied.
func (s *Scheduler) SetDelay(seconds float64) float64 {
	applied := s.delay.Set(seconds)
	log.Info("Delay for [%s] set to %s", s.title, delay.Format(applied))
	if s.State() == Running {
		s.status(runningStatus(applied))
	}
	return applied
}

// Start opens the capture source, binds the sink and begins ticking.
// Failing to open the source is reported as ErrCaptureUnavailable and
// leaves the scheduler as it was.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == Running {
		return ErrAlreadyRunning
	}

	log.Info("Opening capture source for [%s]...", s.title)
	conn, err := s.open(ctx)
	if err == nil && conn == nil {
		err = xerror.New("capture source returned no connection")
	}
	if err != nil {
		s.status("unable to access camera, check the camera is connected and permitted")
		return xerror.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	if err := s.sink.Bind(conn.Dimensions()); err != nil {
		if cerr := conn.Close(); cerr != nil {
			log.Error("Unable to close camera [%s]: %v", conn.Title(), cerr)
		}
		return xerror.Errorf("unable to bind output for [%s]: %w", s.title, err)
	}

	s.mu.Lock()
	s.ring.Clear()
	s.conn = conn
	s.session++
	s.lastTick = s.clock()
	s.failing, s.halting, s.degraded = false, false, false
	s.state = Running
	s.ticks = process.NewTickProcess(process.TickSettings{
		WaitForShutdownMsg: fmt.Sprintf("Stopping delayed playback of [%s]...", s.title),
		Interval:           s.tickInterval,
		Tick:               func() { s.Tick(s.clock()) },
	})
	s.ticks.Setup().Start()
	s.mu.Unlock()

	log.Info("Started delayed playback of camera [%s] with %s delay", conn.Title(), delay.Format(s.delay.Get()))
	s.status(runningStatus(s.delay.Get()))
	return nil
}

// Stop cancels the tick loop and waits for it, so no tick runs once
// Stop returns. The buffer is cleared, the sink unbound and the camera
// closed. Stopping a scheduler which is not running does nothing.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop()
}

// Toggle starts a stopped scheduler or stops a running one.
func (s *Scheduler) Toggle(ctx context.Context) error {
	if s.State() == Running {
		s.Stop()
		return nil
	}
	return s.Start(ctx)
}

func (s *Scheduler) stopSession(session uint64) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	current := s.session
	s.mu.Unlock()
	if current != session {
		return
	}
	s.stop()
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	ticks := s.ticks
	s.ticks = nil
	s.mu.Unlock()

	ticks.Stop()
	ticks.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Clear()
	if err := s.sink.Unbind(); err != nil {
		log.Error("Unable to unbind output for [%s]: %v", s.title, err)
	}
	if err := s.conn.Close(); err != nil {
		log.Error("Unable to close camera [%s]: %v", s.conn.Title(), err)
	}
	s.conn = nil
	s.stopping = false
	s.state = Stopped
	log.Info("Stopped delayed playback of [%s]", s.title)
	s.status("stopped, start again to resume delayed playback")
}

// Tick runs one capture and emit cycle stamped with now. Failures
// during a tick are logged and reported through the status callback,
// they never stop the loop.
func (s *Scheduler) Tick(now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running || s.stopping {
		return
	}
	if now-s.lastTick < s.minTickInterval {
		return
	}
	s.lastTick = now

	if err := s.tick(now); err != nil {
		s.failures++
		s.failing = true
		log.Error("Tick failed for [%s]: %v", s.title, err)
		s.status(fmt.Sprintf("error rendering video frame: %v", err))
		return
	}

	if s.failing {
		s.failing = false
		s.status(runningStatus(s.delay.Get()))
	}
}

func (s *Scheduler) tick(now float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerror.Errorf("recovered from panic: %v", r)
		}
	}()

	if !s.conn.IsOpen() {
		s.lost()
		return nil
	}

	if s.conn.Ready() {
		frame, err := s.conn.Read()
		if err != nil {
			return err
		}
		if err := s.ring.Push(videoframe.Stamped{Frame: frame, Timestamp: now}); err != nil {
			frame.Close()
			return xerror.Errorf("unable to buffer frame: %w", err)
		}
		s.captured++
	}

	target := now - s.delay.Millis()
	frame, ok := s.ring.FindAtOrAfter(target)
	if !ok {
		return nil
	}
	s.trackDegraded(target)

	if err := s.sink.Emit(frame); err != nil {
		return xerror.Errorf("unable to emit delayed frame: %w", err)
	}
	s.emitted++
	return nil
}

// lost stops the session from outside the tick loop once the
// camera stops delivering, Stop waits on the loop so it cannot run here.
func (s *Scheduler) lost() {
	if s.halting {
		return
	}
	s.halting = true
	log.Warn("Camera stream for [%s] has ended, stopping...", s.title)
	go s.stopSession(s.session)
}

// trackDegraded notes when the requested delay reaches further back than
// a full buffer holds. Playback carries on from the oldest frame.
func (s *Scheduler) trackDegraded(target float64) {
	oldest, _ := s.ring.Oldest()
	degraded := s.ring.Len() == s.ring.Cap() && target < oldest.Timestamp
	if degraded == s.degraded {
		return
	}
	s.degraded = degraded
	if degraded {
		log.Debug("Delay for [%s] exceeds the %.0fms held by the buffer, showing oldest frame", s.title, s.ring.Span())
		return
	}
	log.Debug("Delay for [%s] fits within the buffer again", s.title)
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:     s.state,
		Delay:     s.delay.Get(),
		Buffered:  s.ring.Len(),
		Capacity:  s.ring.Cap(),
		Evicted:   s.ring.Evicted(),
		Captured:  s.captured,
		Emitted:   s.emitted,
		Failures:  s.failures,
		Lookback:  s.ring.Span(),
		Degraded:  s.degraded,
		Timestamp: s.lastTick,
	}
}

func (s *Scheduler) status(msg string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.onStatus == nil || msg == s.lastStatus {
		return
	}
	s.lastStatus = msg
	s.onStatus(msg)
}

func runningStatus(seconds float64) string {
	return fmt.Sprintf("showing video with %s delay", delay.Format(seconds))
}

type discard struct{}

func (discard) Bind(videoframe.Dimensions) error { return nil }
func (discard) Emit(videoframe.Stamped) error    { return nil }
func (discard) Unbind() error                    { return nil }
