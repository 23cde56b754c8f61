package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appdb "locker-kiosk-backend/internal/db"
	"locker-kiosk-backend/internal/model"
	"locker-kiosk-backend/internal/resolver"
	"locker-kiosk-backend/internal/store"
)

// fakeClient records every device call and can be told to fail specific
// calls by their recorded signature.
type fakeClient struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{failOn: make(map[string]error)}
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeClient) PulseLock(_ context.Context, ip, channel string) error {
	return f.record(fmt.Sprintf("pulse %s/%s", ip, channel))
}

func (f *fakeClient) SetLED(_ context.Context, ip, channel string, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	return f.record(fmt.Sprintf("led %s/%s %s", ip, channel, state))
}

func (f *fakeClient) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestOrchestrator(fc *fakeClient, blinks int) *Orchestrator {
	o := NewOrchestrator(fc, blinks, 500*time.Millisecond)
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

func TestRunFullSequence(t *testing.T) {
	fc := newFakeClient()
	o := newTestOrchestrator(fc, 2)

	res, err := o.Run(context.Background(), Sequence{
		IPAddress:   "10.0.0.7",
		LockChannel: "lock1",
		LEDChannel:  "led1",
		FinalState:  FinalOn,
	})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Blinks)
	assert.False(t, res.LockSkipped)

	assert.Equal(t, []string{
		"pulse 10.0.0.7/lock1",
		"led 10.0.0.7/led1 on",
		"led 10.0.0.7/led1 off",
		"led 10.0.0.7/led1 on",
		"led 10.0.0.7/led1 off",
		"led 10.0.0.7/led1 on",
	}, fc.recorded())
}

func TestRunSkipsLock(t *testing.T) {
	fc := newFakeClient()
	o := newTestOrchestrator(fc, 1)

	res, err := o.Run(context.Background(), Sequence{
		IPAddress:  "10.0.0.7",
		LEDChannel: "led1",
		FinalState: FinalOff,
		SkipLock:   true,
	})
	require.NoError(t, err)
	assert.True(t, res.LockSkipped)
	for _, call := range fc.recorded() {
		assert.NotContains(t, call, "pulse")
	}
}

func TestRunLockFailureAbortsBeforeBlinking(t *testing.T) {
	fc := newFakeClient()
	fc.failOn["pulse 10.0.0.7/lock1"] = errors.New("device returned status 500")
	o := newTestOrchestrator(fc, 5)

	_, err := o.Run(context.Background(), Sequence{
		IPAddress:   "10.0.0.7",
		LockChannel: "lock1",
		LEDChannel:  "led1",
		FinalState:  FinalOn,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(StateLockPulsing))
	assert.Equal(t, []string{"pulse 10.0.0.7/lock1"}, fc.recorded(), "no blinking after a lock failure")
}

func TestRunBlinkFailureAbortsImmediately(t *testing.T) {
	fc := newFakeClient()
	fc.failOn["led 10.0.0.7/led1 off"] = errors.New("device unreachable")
	o := newTestOrchestrator(fc, 5)

	res, err := o.Run(context.Background(), Sequence{
		IPAddress:  "10.0.0.7",
		LEDChannel: "led1",
		FinalState: FinalOn,
		SkipLock:   true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(StateBlinking))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, res.Blinks)
	assert.Equal(t, []string{"led 10.0.0.7/led1 on", "led 10.0.0.7/led1 off"}, fc.recorded())
}

// The blink loop always ends with the LED off, so a requested toggle
// settles to on.
func TestRunToggleSettlesOn(t *testing.T) {
	fc := newFakeClient()
	o := newTestOrchestrator(fc, 1)

	_, err := o.Run(context.Background(), Sequence{
		IPAddress:  "10.0.0.7",
		LEDChannel: "led1",
		FinalState: FinalToggle,
		SkipLock:   true,
	})
	require.NoError(t, err)

	calls := fc.recorded()
	assert.Equal(t, "led 10.0.0.7/led1 on", calls[len(calls)-1])
}

func TestParseFinalState(t *testing.T) {
	for _, valid := range []string{"on", "off", "toggle"} {
		_, err := ParseFinalState(valid)
		assert.NoError(t, err)
	}
	_, err := ParseFinalState("blink")
	assert.Error(t, err)
}

func newSweepStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:sweep_%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, appdb.Migrate(gormDB))
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	return store.NewGormStore(gormDB, resolver.New())
}

func seedLocker(t *testing.T, s store.Store, number, ip string) {
	t.Helper()
	led := "led1"
	require.NoError(t, s.RegisterLocker(context.Background(), &model.Locker{
		Number:    number,
		IPAddress: &ip,
		LEDs:      &led,
	}))
}

func TestSweepDrivesLEDsFromOccupancy(t *testing.T) {
	s := newSweepStore(t)
	ctx := context.Background()

	seedLocker(t, s, "1", "10.0.0.1")
	seedLocker(t, s, "2", "10.0.0.2")
	// Locker 3 has no device snapshot and must be skipped.
	require.NoError(t, s.RegisterLocker(ctx, &model.Locker{Number: "3"}))

	occupied := &model.ClaimCheck{
		SenderEmail:    "s@x.edu",
		RecipientEmail: "r@x.edu",
		LockerNumber:   "1",
	}
	_, err := s.Submit(ctx, occupied)
	require.NoError(t, err)

	fc := newFakeClient()
	sweep := NewSweep(s, fc, time.Minute, true)
	sweep.SyncOnce(ctx)

	assert.ElementsMatch(t, []string{
		"led 10.0.0.1/led1 on",
		"led 10.0.0.2/led1 off",
	}, fc.recorded())

	t.Run("sweep is idempotent", func(t *testing.T) {
		before := len(fc.recorded())
		sweep.SyncOnce(ctx)
		after := fc.recorded()
		assert.ElementsMatch(t, after[:before], after[before:],
			"second sweep with no ledger change issues the same commands")
	})
}

func TestSweepContinuesPastDeviceFailures(t *testing.T) {
	s := newSweepStore(t)
	ctx := context.Background()

	seedLocker(t, s, "1", "10.0.0.1")
	seedLocker(t, s, "2", "10.0.0.2")

	fc := newFakeClient()
	fc.failOn["led 10.0.0.1/led1 off"] = errors.New("device unreachable")

	sweep := NewSweep(s, fc, time.Minute, true)
	sweep.SyncOnce(ctx)

	assert.Contains(t, fc.recorded(), "led 10.0.0.2/led1 off",
		"remaining lockers are swept after a per-locker failure")
}
