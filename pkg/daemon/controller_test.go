package daemon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/charlie0129/curtain/pkg/events"
	"github.com/charlie0129/curtain/pkg/motion"
	"github.com/charlie0129/curtain/pkg/motor"
)

type fakeCommander struct {
	mu       sync.Mutex
	log      []string
	failStep func(n int) error // called with the 1-based step index
	failAll  error
	steps    int
	ready    chan struct{}
}

func (f *fakeCommander) WaitReady(ctx context.Context) error {
	if f.ready == nil {
		return nil
	}
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCommander) record(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	f.log = append(f.log, cmd)
	return nil
}

func (f *fakeCommander) Enable(_ context.Context, dir motion.Direction) error {
	return f.record("enable " + dir.String())
}

func (f *fakeCommander) Step(_ context.Context, b motion.Burst) error {
	f.mu.Lock()
	f.steps++
	n := f.steps
	f.mu.Unlock()
	if f.failStep != nil {
		if err := f.failStep(n); err != nil {
			return err
		}
	}
	return f.record(fmt.Sprintf("step %d", b.Steps))
}

func (f *fakeCommander) Disable(context.Context) error {
	return f.record("disable")
}

func (f *fakeCommander) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeCommander) count(cmd string) int {
	n := 0
	for _, c := range f.commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu      sync.Mutex
	heights map[string]int64
	saves   []int64
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{heights: map[string]int64{}}
}

func (s *fakeStore) Load(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heights[name]
}

func (s *fakeStore) Save(name string, heightSteps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, heightSteps)
	if s.saveErr != nil {
		return s.saveErr
	}
	s.heights[name] = heightSteps
	return nil
}

func newTestController(t *testing.T, cmd Commander, store PositionStore, opts ControllerOptions) *Controller {
	t.Helper()
	conv, err := motion.NewConverter(1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	return NewController("test", cmd, store, conv, opts)
}

func tickUntilIdle(t *testing.T, c *Controller) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if err := c.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error: %v", err)
		}
		if c.CurrentSteps() == c.TargetSteps() && c.Direction() == motion.DirectionUnknown {
			return
		}
	}
	t.Fatal("controller did not settle")
}

func TestTickReachesTargetWithOneEnable(t *testing.T) {
	cmd := &fakeCommander{}
	store := newFakeStore()
	c := newTestController(t, cmd, store, ControllerOptions{MaxBurst: 64})

	if err := c.SetTargetSteps(100); err != nil {
		t.Fatal(err)
	}
	tickUntilIdle(t, c)

	if c.CurrentSteps() != 100 {
		t.Errorf("current = %d, want 100", c.CurrentSteps())
	}
	want := []string{"enable backward", "step 64", "step 32", "step 4", "disable"}
	if diff := cmp.Diff(want, cmd.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{64, 96, 100}, store.saves); diff != "" {
		t.Errorf("saves mismatch (-want +got):\n%s", diff)
	}
}

func TestTickNoRepeatedEnable(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{MaxBurst: 1})

	if err := c.SetTargetSteps(5); err != nil {
		t.Fatal(err)
	}
	// retarget in the same direction between ticks
	for i := 0; i < 3; i++ {
		if err := c.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := c.SetTargetSteps(c.TargetSteps() + 1); err != nil {
			t.Fatal(err)
		}
	}
	tickUntilIdle(t, c)

	if n := cmd.count("enable backward"); n != 1 {
		t.Errorf("sent %d enables, want 1", n)
	}
	if c.CurrentSteps() != 8 {
		t.Errorf("current = %d, want 8", c.CurrentSteps())
	}
}

func TestTickMovesForward(t *testing.T) {
	cmd := &fakeCommander{}
	store := newFakeStore()
	store.heights["test"] = 300
	c := newTestController(t, cmd, store, ControllerOptions{})

	if c.CurrentSteps() != 300 || c.TargetSteps() != 300 {
		t.Fatalf("restored current/target = %d/%d, want 300/300", c.CurrentSteps(), c.TargetSteps())
	}
	if err := c.SetTargetPercent(10); err != nil {
		t.Fatal(err)
	}
	tickUntilIdle(t, c)

	want := []string{"enable forward", "step 128", "step 64", "step 8", "disable"}
	if diff := cmp.Diff(want, cmd.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if store.Load("test") != 100 {
		t.Errorf("persisted = %d, want 100", store.Load("test"))
	}
}

func TestStopDisablesOnNextTick(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{MaxBurst: 4})

	if err := c.SetTargetSteps(100); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SetTargetSteps(200); err != nil {
		t.Fatal(err)
	}
	if c.MotionState() != motion.Increasing {
		t.Fatalf("MotionState() = %s, want increasing", c.MotionState())
	}

	c.Stop()
	before := len(cmd.commands())
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"disable"}, cmd.commands()[before:]); diff != "" {
		t.Errorf("commands after stop mismatch (-want +got):\n%s", diff)
	}
	if c.Direction() != motion.DirectionUnknown {
		t.Errorf("Direction() = %s, want unknown", c.Direction())
	}
	if c.MotionState() != motion.Stopped {
		t.Errorf("MotionState() = %s, want stopped", c.MotionState())
	}

	// idle ticks send nothing
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(cmd.commands()); got != before+1 {
		t.Errorf("idle tick sent %d commands", got-before-1)
	}
}

func TestTickProtocolErrorAbortsBursts(t *testing.T) {
	timeout := &motor.ProtocolError{Device: "test", Command: "S5", Err: motor.ErrTimeout}
	cmd := &fakeCommander{failStep: func(n int) error {
		if n == 2 {
			return timeout
		}
		return nil
	}}
	store := newFakeStore()
	c := newTestController(t, cmd, store, ControllerOptions{MaxBurst: 64})

	if err := c.SetTargetSteps(100); err != nil {
		t.Fatal(err)
	}
	err := c.Tick(context.Background())
	if !errors.Is(err, motor.ErrTimeout) {
		t.Fatalf("Tick() error = %v, want ErrTimeout", err)
	}

	if c.CurrentSteps() != 64 {
		t.Errorf("current = %d, want 64 (failed burst must not count)", c.CurrentSteps())
	}
	if diff := cmp.Diff([]int64{64}, store.saves); diff != "" {
		t.Errorf("saves mismatch (-want +got):\n%s", diff)
	}

	// next tick resumes from the last acknowledged position without re-enabling
	tickUntilIdle(t, c)
	if c.CurrentSteps() != 100 {
		t.Errorf("current = %d, want 100", c.CurrentSteps())
	}
	if n := cmd.count("enable backward"); n != 1 {
		t.Errorf("sent %d enables, want 1", n)
	}
}

func TestTickFailedEnableIsRetried(t *testing.T) {
	cmd := &fakeCommander{failAll: motor.ErrEOF}
	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{})

	if err := c.SetTargetSteps(10); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(context.Background()); !errors.Is(err, motor.ErrEOF) {
		t.Fatalf("Tick() error = %v, want ErrEOF", err)
	}
	if c.Direction() != motion.DirectionUnknown {
		t.Errorf("Direction() = %s after failed enable, want unknown", c.Direction())
	}

	cmd.mu.Lock()
	cmd.failAll = nil
	cmd.mu.Unlock()

	tickUntilIdle(t, c)
	if diff := cmp.Diff([]string{"enable backward", "step 8", "step 2", "disable"}, cmd.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestTickStorageErrorKeepsMoving(t *testing.T) {
	cmd := &fakeCommander{}
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	c := newTestController(t, cmd, store, ControllerOptions{})

	if err := c.SetTargetSteps(3); err != nil {
		t.Fatal(err)
	}
	tickUntilIdle(t, c)

	if c.CurrentSteps() != 3 {
		t.Errorf("current = %d, want 3", c.CurrentSteps())
	}
	if len(store.saves) != 2 {
		t.Errorf("attempted %d saves, want 2", len(store.saves))
	}
}

func TestTickReverseDirection(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{Reverse: true})

	if err := c.SetTargetSteps(1); err != nil {
		t.Fatal(err)
	}
	tickUntilIdle(t, c)

	if diff := cmp.Diff([]string{"enable forward", "step 1", "disable"}, cmd.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestSetTargetValidation(t *testing.T) {
	c := newTestController(t, &fakeCommander{}, newFakeStore(), ControllerOptions{})

	for _, p := range []float64{-1, 100.5} {
		var verr *motion.ValidationError
		if err := c.SetTargetPercent(p); !errors.As(err, &verr) {
			t.Errorf("SetTargetPercent(%g) error = %v, want *ValidationError", p, err)
		}
	}
	if err := c.SetTargetSteps(1001); err == nil {
		t.Error("SetTargetSteps beyond the total should fail")
	}
	if c.TargetSteps() != 0 {
		t.Errorf("target changed to %d by rejected input", c.TargetSteps())
	}

	if err := c.SetTargetPercent(50); err != nil {
		t.Fatal(err)
	}
	if c.TargetPercent() != 50 {
		t.Errorf("TargetPercent() = %g, want 50", c.TargetPercent())
	}
}

func TestControllerState(t *testing.T) {
	store := newFakeStore()
	store.heights["test"] = 255
	c := newTestController(t, &fakeCommander{}, store, ControllerOptions{})
	if err := c.SetTargetSteps(0); err != nil {
		t.Fatal(err)
	}

	st := c.State()
	if st.CurrentPos != 26 || st.TargetPos != 0 || st.CurrentSteps != 255 || st.TotalSteps != 1000 {
		t.Errorf("State() = %+v", st)
	}
	if st.State != "stopped" || st.Ready {
		t.Errorf("State() before the first tick = %+v", st)
	}
}

func TestRunDisablesOnExit(t *testing.T) {
	cmd := &fakeCommander{ready: make(chan struct{})}
	hub := events.NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{
		MaxBurst:     1,
		TickInterval: time.Millisecond,
		Hub:          hub,
	})
	if err := c.SetTargetSteps(1000); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	if c.Ready() || len(cmd.commands()) != 0 {
		t.Fatal("controller moved before the device was ready")
	}

	close(cmd.ready)
	ev := <-sub
	if ev.Name != events.DeviceReady {
		t.Fatalf("first event = %s, want %s", ev.Name, events.DeviceReady)
	}
	for cmd.count("step 1") < 3 {
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	cmds := cmd.commands()
	if cmds[len(cmds)-1] != "disable" {
		t.Errorf("last command = %s, want disable", cmds[len(cmds)-1])
	}
	if c.Direction() != motion.DirectionUnknown {
		t.Errorf("Direction() = %s after exit, want unknown", c.Direction())
	}
}

func TestRunCancelledBeforeReady(t *testing.T) {
	cmd := &fakeCommander{ready: make(chan struct{})}
	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if len(cmd.commands()) != 0 {
		t.Errorf("sent %v before readiness", cmd.commands())
	}
}

func TestTickCancelledSendsNothing(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(t, cmd, newFakeStore(), ControllerOptions{MaxBurst: 512})
	if err := c.SetTargetSteps(1000); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Tick() error = %v, want context.Canceled", err)
	}
	if len(cmd.commands()) != 0 {
		t.Errorf("sent %v on a cancelled tick", cmd.commands())
	}
}

// slowEchoPort echoes every write back after delay, like firmware that
// acknowledges a burst only once the motor finished it.
type slowEchoPort struct {
	mu      sync.Mutex
	delay   time.Duration
	written []string
	pending []byte
	readyAt time.Time
}

func (p *slowEchoPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 || time.Now().Before(p.readyAt) {
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *slowEchoPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, string(b))
	p.pending = append(p.pending, b...)
	p.readyAt = time.Now().Add(p.delay)
	return len(b), nil
}

func (p *slowEchoPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return nil
}

func (p *slowEchoPort) Close() error { return nil }

func (p *slowEchoPort) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func TestShutdownCountsInFlightBurst(t *testing.T) {
	port := &slowEchoPort{delay: 30 * time.Millisecond, pending: []byte{motor.ReadyByte}}
	ch := motor.NewChannel("test", port, time.Second, time.Millisecond)
	store := newFakeStore()

	c := newTestController(t, ch, store, ControllerOptions{
		MaxBurst:     512,
		TickInterval: time.Millisecond,
	})
	if err := c.SetTargetSteps(1024); err != nil {
		t.Fatal(err)
	}

	step, err := motor.StepCommand(9)
	if err != nil {
		t.Fatal(err)
	}
	enable, err := motor.EnableCommand(motion.DirectionBackward)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !slices.Contains(port.commands(), step) {
		if time.Now().After(deadline) {
			t.Fatalf("no burst sent, wire: %v", port.commands())
		}
		time.Sleep(time.Millisecond)
	}

	// Same order as the daemon shutdown: stop, then cancel the loop while
	// the burst is still waiting for its echo.
	c.Stop()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got := c.CurrentSteps(); got != 512 {
		t.Errorf("CurrentSteps() = %d, want 512", got)
	}
	if got := store.Load("test"); got != 512 {
		t.Errorf("persisted height = %d, want 512", got)
	}
	want := []string{enable, step, motor.DisableCommand}
	if diff := cmp.Diff(want, port.commands()); diff != "" {
		t.Errorf("wire commands mismatch (-want +got):\n%s", diff)
	}
}
