package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// State names the phases of an actuation sequence.
type State string

const (
	StateIdle        State = "idle"
	StateLockPulsing State = "lock_pulsing"
	StateBlinking    State = "blinking"
	StateSettling    State = "settling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// FinalState is the caller-requested LED state after the blink sequence.
type FinalState string

const (
	FinalOn     FinalState = "on"
	FinalOff    FinalState = "off"
	FinalToggle FinalState = "toggle"
)

// ParseFinalState validates a final-state string from a request.
func ParseFinalState(s string) (FinalState, error) {
	switch FinalState(s) {
	case FinalOn, FinalOff, FinalToggle:
		return FinalState(s), nil
	}
	return "", fmt.Errorf("invalid final state %q", s)
}

// Sequence describes one actuation request against a controller.
type Sequence struct {
	IPAddress   string
	LockChannel string
	LEDChannel  string
	FinalState  FinalState
	SkipLock    bool
}

// Result summarizes a completed sequence. State is the terminal state,
// StateDone or StateFailed.
type Result struct {
	State       State
	Blinks      int
	LockSkipped bool
	Summary     string
}

// Orchestrator executes actuation sequences. The sleep function is
// injected so tests run without wall-clock delays.
type Orchestrator struct {
	client   DeviceClient
	blinks   int
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator that blinks the LED blinks
// times with the given settle interval between on/off transitions.
func NewOrchestrator(client DeviceClient, blinks int, interval time.Duration) *Orchestrator {
	return &Orchestrator{
		client:   client,
		blinks:   blinks,
		interval: interval,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the sequence: pulse the lock (unless skipped), blink the
// LED, then settle it to the requested final state. Any device failure
// aborts the remaining sequence immediately; there is no partial retry.
func (o *Orchestrator) Run(ctx context.Context, seq Sequence) (Result, error) {
	res, err := o.run(ctx, seq)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.State = StateDone
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, seq Sequence) (Result, error) {
	state := StateIdle
	res := Result{LockSkipped: seq.SkipLock || seq.LockChannel == ""}

	if !res.LockSkipped {
		state = StateLockPulsing
		if err := o.client.PulseLock(ctx, seq.IPAddress, seq.LockChannel); err != nil {
			return res, o.fail(state, seq, err)
		}
	}

	state = StateBlinking
	for i := 1; i <= o.blinks; i++ {
		if err := o.client.SetLED(ctx, seq.IPAddress, seq.LEDChannel, true); err != nil {
			return res, o.fail(state, seq, err)
		}
		if err := o.sleep(ctx, o.interval); err != nil {
			return res, o.fail(state, seq, err)
		}
		if err := o.client.SetLED(ctx, seq.IPAddress, seq.LEDChannel, false); err != nil {
			return res, o.fail(state, seq, err)
		}
		if err := o.sleep(ctx, o.interval); err != nil {
			return res, o.fail(state, seq, err)
		}
		res.Blinks = i
	}

	state = StateSettling
	// The blink loop always ends in the off phase, so a requested toggle
	// resolves to on. The orchestrator does not track true prior LED state.
	finalOn := seq.FinalState == FinalOn || seq.FinalState == FinalToggle
	if err := o.client.SetLED(ctx, seq.IPAddress, seq.LEDChannel, finalOn); err != nil {
		return res, o.fail(state, seq, err)
	}

	res.Summary = fmt.Sprintf("blinked %d times, lock skipped: %t", res.Blinks, res.LockSkipped)
	return res, nil
}

// RunBackground executes the sequence detached from the caller. A device
// failure here never reverses the ledger state the caller already
// committed; the next reconciliation sweep corrects the LED.
func (o *Orchestrator) RunBackground(seq Sequence, after func()) {
	go func() {
		res, err := o.Run(context.Background(), seq)
		if err != nil {
			log.Warn().Err(err).Str("ip", seq.IPAddress).Msg("background actuation failed")
		} else {
			log.Info().Str("ip", seq.IPAddress).Str("summary", res.Summary).Msg("actuation complete")
		}
		if after != nil {
			after()
		}
	}()
}

func (o *Orchestrator) fail(state State, seq Sequence, err error) error {
	return fmt.Errorf("actuation failed in state %s for device %s: %w", state, seq.IPAddress, err)
}
