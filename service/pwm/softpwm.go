package pwm

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pinwheel-io/pinwheel/service/lines"
)

// Idle re-check interval while the duty cycle pins the line at a
// steady level. No toggling happens in that state.
const steadyLevelInterval = time.Millisecond * 10

// softDriver generates the signal with busy-wait timing.
// The goroutine stays runnable for the entire on/off duration, which
// minimizes jitter at the price of CPU time.
type softDriver struct {
	ch      *channel
	line    lines.OutputLine
	running atomic.Bool
	started bool
	done    chan struct{}
}

func newSoftDriver(ch *channel, line lines.OutputLine) *softDriver {
	return &softDriver{
		ch:   ch,
		line: line,
		done: make(chan struct{}),
	}
}

// start signal generation. Blocks until the goroutine is running.
func (d *softDriver) start() error {
	d.running.Store(true)
	d.started = true
	started := make(chan struct{})
	go d.run(started)
	<-started
	return nil
}

// apply is a no-op; the goroutine re-reads frequency and duty cycle
// at every cycle boundary.
func (d *softDriver) apply() error {
	return nil
}

// stop signal generation, leaving the line LOW.
func (d *softDriver) stop() error {
	if d.running.CompareAndSwap(true, false) && d.started {
		<-d.done
	}
	d.line.Write(false)
	if err := d.line.Release(); err != nil {
		return maskAny(err)
	}
	return nil
}

func (d *softDriver) run(started chan<- struct{}) {
	defer close(d.done)
	close(started)
	d.ch.log.Debug().Msg("software pwm loop started")
	for d.running.Load() {
		// Re-read at the cycle boundary so setter changes never
		// deform a pulse mid-cycle.
		frequency := d.ch.getFrequency()
		duty := d.ch.getDuty()
		period := time.Duration(float64(time.Second) / frequency)
		onTime := time.Duration(float64(period) * duty / 100.0)

		switch {
		case duty <= 0:
			// Steady LOW, no toggle overhead.
			d.line.Write(false)
			d.idle()
		case duty >= 100:
			// Steady HIGH, no toggle overhead.
			d.line.Write(true)
			d.idle()
		default:
			cycleStart := time.Now()
			d.line.Write(true)
			d.busyWait(cycleStart.Add(onTime))
			d.line.Write(false)
			d.busyWait(cycleStart.Add(period))
		}
	}
	d.line.Write(false)
	d.ch.log.Debug().Msg("software pwm loop stopped")
}

// busyWait spins until the given deadline, yielding the processor
// between checks.
func (d *softDriver) busyWait(deadline time.Time) {
	for d.running.Load() && time.Now().Before(deadline) {
		runtime.Gosched()
	}
}

// idle sleeps briefly at a steady output level.
func (d *softDriver) idle() {
	time.Sleep(steadyLevelInterval)
}
