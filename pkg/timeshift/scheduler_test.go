package timeshift_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/dragondelay/pkg/camera"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/timeshift"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
)

type mockFrame struct {
	id      int
	onClose func()
}

func (m *mockFrame) DataRef() interface{} { return m.id }

func (m *mockFrame) Dimensions() videoframe.Dimensions {
	return videoframe.Dimensions{W: 640, H: 480}
}

func (m *mockFrame) ToBytes() []byte { return []byte{byte(m.id)} }

func (m *mockFrame) Clone() videoframe.Frame { return &mockFrame{id: m.id} }

func (m *mockFrame) Close() {
	if m.onClose != nil {
		m.onClose()
	}
}

type mockCameraConn struct {
	mu       sync.Mutex
	title    string
	isOpen   bool
	notReady bool
	reads    int
	readErr  func(read int) error
	readFunc func(read int) videoframe.Frame
	closed   int
}

func (m *mockCameraConn) UUID() string { return "mock-uuid" }

func (m *mockCameraConn) Title() string { return m.title }

func (m *mockCameraConn) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOpen && !m.notReady
}

func (m *mockCameraConn) Read() (videoframe.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		if err := m.readErr(m.reads); err != nil {
			return nil, err
		}
	}
	if m.readFunc != nil {
		return m.readFunc(m.reads), nil
	}
	return &mockFrame{id: m.reads}, nil
}

func (m *mockCameraConn) Dimensions() videoframe.Dimensions {
	return videoframe.Dimensions{W: 640, H: 480}
}

func (m *mockCameraConn) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOpen
}

func (m *mockCameraConn) setOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isOpen = open
}

func (m *mockCameraConn) IsClosing() bool { return !m.IsOpen() }

func (m *mockCameraConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isOpen = false
	m.closed++
	return nil
}

type recordingSink struct {
	mu       sync.Mutex
	bound    []videoframe.Dimensions
	unbound  int
	emitted  []float64
	bindErr  error
	emitErr  error
	onEmit   func(videoframe.Stamped)
	panicMsg string
}

func (r *recordingSink) Bind(dims videoframe.Dimensions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindErr != nil {
		return r.bindErr
	}
	r.bound = append(r.bound, dims)
	return nil
}

func (r *recordingSink) Emit(f videoframe.Stamped) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.panicMsg) > 0 {
		panic(r.panicMsg)
	}
	if r.emitErr != nil {
		return r.emitErr
	}
	r.emitted = append(r.emitted, f.Timestamp)
	if r.onEmit != nil {
		r.onEmit(f)
	}
	return nil
}

func (r *recordingSink) Unbind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbound++
	return nil
}

func (r *recordingSink) emittedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emitted)
}

func (r *recordingSink) lastEmitted() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitted[len(r.emitted)-1]
}

// testClock is shared between the test and the background tick loop, so
// any tick the loop runs lands on the same timestamp as the test's own.
type testClock struct {
	mu  sync.Mutex
	now float64
}

func (c *testClock) read() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) set(now float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func overloadErrorLog(overload func(string, ...interface{})) func() {
	logErrorRef := log.Error
	log.Error = overload
	return func() { log.Error = logErrorRef }
}

type SchedulerTestSuite struct {
	suite.Suite
	clock                  *testClock
	conn                   *mockCameraConn
	sink                   *recordingSink
	statusMu               sync.Mutex
	statuses               []string
	errorLogs              []string
	resetErrorLogsOverload func()
}

func (suite *SchedulerTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *SchedulerTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *SchedulerTestSuite) SetupTest() {
	suite.clock = &testClock{}
	suite.conn = &mockCameraConn{title: "TestCam", isOpen: true}
	suite.sink = &recordingSink{}
	suite.statuses = nil
	suite.errorLogs = nil
	suite.resetErrorLogsOverload = overloadErrorLog(func(format string, a ...interface{}) {
		suite.statusMu.Lock()
		defer suite.statusMu.Unlock()
		suite.errorLogs = append(suite.errorLogs, fmt.Sprintf(format, a...))
	})
}

func (suite *SchedulerTestSuite) TearDownTest() {
	suite.resetErrorLogsOverload()
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, &SchedulerTestSuite{})
}

func (suite *SchedulerTestSuite) newScheduler(maxFrames int) *timeshift.Scheduler {
	return timeshift.New(timeshift.Settings{
		Title: "TestCam",
		Open: func(context.Context) (camera.Connection, error) {
			return suite.conn, nil
		},
		Sink:      suite.sink,
		MaxFrames: maxFrames,
		Clock:     suite.clock.read,
		OnStatus: func(msg string) {
			suite.statusMu.Lock()
			defer suite.statusMu.Unlock()
			suite.statuses = append(suite.statuses, msg)
		},
	})
}

func (suite *SchedulerTestSuite) tickAt(s *timeshift.Scheduler, now float64) {
	suite.clock.set(now)
	s.Tick(now)
}

func (suite *SchedulerTestSuite) lastStatus() string {
	suite.statusMu.Lock()
	defer suite.statusMu.Unlock()
	if len(suite.statuses) == 0 {
		return ""
	}
	return suite.statuses[len(suite.statuses)-1]
}

func (suite *SchedulerTestSuite) TestNewSchedulerDefaults() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.Equal(s.State(), timeshift.Idle)
	is.Equal(s.Delay(), 1.0)
	stats := s.Stats()
	is.Equal(stats.Capacity, 300)
	is.Equal(stats.Buffered, 0)
}

func (suite *SchedulerTestSuite) TestSetDelayClampsOutOfRangeValues() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.Equal(s.SetDelay(9), 5.0)
	is.Equal(s.Delay(), 5.0)
	is.Equal(s.SetDelay(-2), 0.0)
	is.Equal(s.Delay(), 0.0)
	is.Equal(s.SetDelay(2.5), 2.5)
	is.Equal(s.Delay(), 2.5)
}

func (suite *SchedulerTestSuite) TestStartFailsWhenCaptureUnavailable() {
	is := is.New(suite.T())
	s := timeshift.New(timeshift.Settings{
		Open: func(context.Context) (camera.Connection, error) {
			return nil, errors.New("permission denied")
		},
		Sink: suite.sink,
	})

	err := s.Start(context.Background())
	is.True(errors.Is(err, timeshift.ErrCaptureUnavailable))
	suite.EqualError(err, "capture unavailable: permission denied")
	is.Equal(s.State(), timeshift.Idle)
	is.Equal(len(suite.sink.bound), 0)
}

func (suite *SchedulerTestSuite) TestStartFailsAndClosesCameraWhenSinkWillNotBind() {
	is := is.New(suite.T())
	suite.sink.bindErr = errors.New("no display")
	s := suite.newScheduler(0)

	err := s.Start(context.Background())
	suite.EqualError(err, "unable to bind output for [TestCam]: no display")
	is.Equal(s.State(), timeshift.Idle)
	is.Equal(suite.conn.closed, 1)
}

func (suite *SchedulerTestSuite) TestStartBindsSinkAndStopReleasesEverything() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.NoErr(s.Start(context.Background()))
	is.Equal(s.State(), timeshift.Running)
	is.Equal(suite.sink.bound, []videoframe.Dimensions{{W: 640, H: 480}})
	is.Equal(suite.lastStatus(), "showing video with 1.0s delay")

	suite.tickAt(s, 100)
	suite.tickAt(s, 200)
	is.Equal(s.Stats().Buffered, 2)

	s.Stop()
	is.Equal(s.State(), timeshift.Stopped)
	is.Equal(s.Stats().Buffered, 0)
	is.Equal(suite.sink.unbound, 1)
	is.Equal(suite.conn.closed, 1)
	is.Equal(suite.lastStatus(), "stopped, start again to resume delayed playback")
}

func (suite *SchedulerTestSuite) TestStopIsIdempotent() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	s.Stop()
	is.Equal(s.State(), timeshift.Idle)

	is.NoErr(s.Start(context.Background()))
	s.Stop()
	s.Stop()
	is.Equal(s.State(), timeshift.Stopped)
	is.Equal(s.Stats().Buffered, 0)
	is.Equal(suite.sink.unbound, 1)
	is.Equal(suite.conn.closed, 1)
}

func (suite *SchedulerTestSuite) TestStartWhileRunningIsRejected() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.NoErr(s.Start(context.Background()))
	defer s.Stop()
	err := s.Start(context.Background())
	is.True(errors.Is(err, timeshift.ErrAlreadyRunning))
	is.Equal(s.State(), timeshift.Running)
	is.Equal(len(suite.sink.bound), 1)
}

func (suite *SchedulerTestSuite) TestRestartAfterStopBeginsWithEmptyBuffer() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.NoErr(s.Start(context.Background()))
	suite.tickAt(s, 100)
	s.Stop()

	suite.conn.setOpen(true)
	suite.clock.set(1000)
	is.NoErr(s.Start(context.Background()))
	defer s.Stop()
	is.Equal(s.State(), timeshift.Running)
	is.Equal(s.Stats().Buffered, 0)

	suite.tickAt(s, 1100)
	is.Equal(s.Stats().Buffered, 1)
	is.Equal(len(suite.sink.bound), 2)
}

func (suite *SchedulerTestSuite) TestToggleStartsAndStops() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.NoErr(s.Toggle(context.Background()))
	is.Equal(s.State(), timeshift.Running)
	is.NoErr(s.Toggle(context.Background()))
	is.Equal(s.State(), timeshift.Stopped)
}

func (suite *SchedulerTestSuite) TestTickBeforeStartDoesNothing() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	s.Tick(100)
	is.Equal(suite.conn.reads, 0)
	is.Equal(suite.sink.emittedCount(), 0)
}

func (suite *SchedulerTestSuite) TestTicksAreThrottledToMinimumInterval() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.NoErr(s.Start(context.Background()))
	defer s.Stop()

	// start recorded 0 as the last tick
	suite.tickAt(s, 10)
	is.Equal(s.Stats().Captured, uint64(0))

	suite.tickAt(s, 16)
	suite.tickAt(s, 20)
	suite.tickAt(s, 31)
	is.Equal(s.Stats().Captured, uint64(1))

	suite.tickAt(s, 32)
	is.Equal(s.Stats().Captured, uint64(2))
}

func (suite *SchedulerTestSuite) runScenario(s *timeshift.Scheduler) {
	suite.clock.set(-100)
	suite.Require().NoError(s.Start(context.Background()))
	for now := 0.0; now <= 2000; now += 100 {
		suite.tickAt(s, now)
	}
}

func (suite *SchedulerTestSuite) TestDelayedFrameIsExactMatchForTarget() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)
	s.SetDelay(0.5)

	suite.runScenario(s)
	defer s.Stop()

	is.Equal(s.Stats().Buffered, 21)
	is.Equal(suite.sink.lastEmitted(), 1500.0)
}

func (suite *SchedulerTestSuite) TestDelayBeyondBufferedHistoryEmitsOldestFrame() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)
	s.SetDelay(3.0)

	suite.runScenario(s)
	defer s.Stop()

	is.Equal(suite.sink.lastEmitted(), 0.0)
	// still filling, not limited by the cap
	is.True(!s.Stats().Degraded)
}

func (suite *SchedulerTestSuite) TestZeroDelayEmitsFrameJustCaptured() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)
	s.SetDelay(0)

	suite.runScenario(s)
	defer s.Stop()

	is.Equal(suite.sink.lastEmitted(), 2000.0)
}

func (suite *SchedulerTestSuite) TestDelayChangeAppliesOnNextTick() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)
	s.SetDelay(0.5)

	suite.runScenario(s)
	defer s.Stop()
	is.Equal(suite.sink.lastEmitted(), 1500.0)

	s.SetDelay(1.2)
	is.Equal(suite.lastStatus(), "showing video with 1.2s delay")
	suite.tickAt(s, 2100)
	is.Equal(suite.sink.lastEmitted(), 900.0)
}

func (suite *SchedulerTestSuite) TestCappedBufferDegradesToOldestFrame() {
	is := is.New(suite.T())
	s := suite.newScheduler(5)
	s.SetDelay(2.0)

	suite.runScenario(s)
	defer s.Stop()

	stats := s.Stats()
	is.Equal(stats.Buffered, 5)
	is.Equal(stats.Evicted, uint64(16))
	is.Equal(stats.Lookback, 400.0)
	is.True(stats.Degraded)
	is.Equal(suite.sink.lastEmitted(), 1600.0)
}

func (suite *SchedulerTestSuite) TestNotReadySourceStillEmitsBufferedFrames() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)
	s.SetDelay(0.5)

	suite.runScenario(s)
	defer s.Stop()

	suite.conn.mu.Lock()
	suite.conn.notReady = true
	suite.conn.mu.Unlock()

	suite.tickAt(s, 2200)
	is.Equal(s.Stats().Buffered, 21)
	is.Equal(suite.sink.lastEmitted(), 1700.0)
}

func (suite *SchedulerTestSuite) TestReadFailureIsTransientAndLeavesBufferUntouched() {
	is := is.New(suite.T())
	suite.conn.readErr = func(read int) error {
		if read == 2 {
			return errors.New("decode failed")
		}
		return nil
	}
	s := suite.newScheduler(0)
	s.SetDelay(0)

	is.NoErr(s.Start(context.Background()))
	defer s.Stop()

	suite.tickAt(s, 100)
	is.Equal(s.Stats().Buffered, 1)

	suite.tickAt(s, 200)
	stats := s.Stats()
	is.Equal(stats.Buffered, 1)
	is.Equal(stats.Failures, uint64(1))
	is.Equal(suite.lastStatus(), "error rendering video frame: decode failed")
	is.Equal(s.State(), timeshift.Running)

	suite.tickAt(s, 300)
	is.Equal(s.Stats().Buffered, 2)
	is.Equal(suite.sink.lastEmitted(), 300.0)
	is.Equal(suite.lastStatus(), "showing video with 0.0s delay")
}

func (suite *SchedulerTestSuite) TestEmitFailureIsTransient() {
	is := is.New(suite.T())
	s := suite.newScheduler(0)

	is.NoErr(s.Start(context.Background()))
	defer s.Stop()

	suite.sink.mu.Lock()
	suite.sink.emitErr = errors.New("surface gone")
	suite.sink.mu.Unlock()
	suite.tickAt(s, 100)

	is.Equal(s.Stats().Failures, uint64(1))
	is.Equal(s.Stats().Buffered, 1)
	is.Equal(suite.lastStatus(), "error rendering video frame: unable to emit delayed frame: surface gone")

	suite.sink.mu.Lock()
	suite.sink.emitErr = nil
	suite.sink.mu.Unlock()
	suite.tickAt(s, 200)
	is.Equal(suite.sink.emittedCount(), 1)
}

func (suite *SchedulerTestSuite) TestPanicDuringTickIsRecovered() {
	is := is.New(suite.T())
	suite.sink.panicMsg = "sink exploded"
	s := suite.newScheduler(0)

	is.NoErr(s.Start(context.Background()))
	defer s.Stop()

	suite.tickAt(s, 100)
	is.Equal(s.Stats().Failures, uint64(1))
	is.Equal(s.State(), timeshift.Running)
	is.Equal(suite.lastStatus(), "error rendering video frame: recovered from panic: sink exploded")
}

func (suite *SchedulerTestSuite) TestEvictedAndClearedFramesAreClosed() {
	is := is.New(suite.T())
	var mu sync.Mutex
	closed := 0
	suite.conn.readFunc = func(read int) videoframe.Frame {
		return &mockFrame{id: read, onClose: func() {
			mu.Lock()
			defer mu.Unlock()
			closed++
		}}
	}
	s := suite.newScheduler(3)

	is.NoErr(s.Start(context.Background()))
	for now := 100.0; now <= 500; now += 100 {
		suite.tickAt(s, now)
	}
	mu.Lock()
	is.Equal(closed, 2)
	mu.Unlock()

	s.Stop()
	mu.Lock()
	is.Equal(closed, 5)
	mu.Unlock()
}

func (suite *SchedulerTestSuite) TestSchedulerStopsItselfWhenStreamEnds() {
	s := suite.newScheduler(0)

	suite.Require().NoError(s.Start(context.Background()))
	suite.tickAt(s, 100)

	suite.conn.setOpen(false)
	suite.tickAt(s, 200)

	suite.Eventually(func() bool {
		return s.State() == timeshift.Stopped
	}, 3*time.Second, 5*time.Millisecond)
	suite.Equal(0, s.Stats().Buffered)
	suite.Equal(1, suite.sink.unbound)
}

func (suite *SchedulerTestSuite) TestTickLoopRunsUntilStopped() {
	s := timeshift.New(timeshift.Settings{
		Open: func(context.Context) (camera.Connection, error) {
			return suite.conn, nil
		},
		Sink:        suite.sink,
		RefreshRate: 200,
	})

	suite.Require().NoError(s.Start(context.Background()))
	suite.Eventually(func() bool {
		return suite.sink.emittedCount() >= 3
	}, 3*time.Second, 5*time.Millisecond)

	s.Stop()
	emitted := suite.sink.emittedCount()
	time.Sleep(50 * time.Millisecond)
	suite.Equal(emitted, suite.sink.emittedCount())
}
