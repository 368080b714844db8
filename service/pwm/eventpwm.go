package pwm

import (
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pinwheel-io/pinwheel/service/lines"
)

// Final stretch of every sleep that is busy-waited for precision.
// Larger values reduce jitter, smaller values reduce CPU usage.
const busyWaitWindow = time.Microsecond * 100

// eventDriver generates the signal by sleeping until absolute
// transition deadlines. Deadlines are advanced from the previous
// deadline, not from wake-up time, so per-iteration scheduling latency
// does not compound into drift. The goroutine is descheduled between
// transitions, cutting CPU usage sharply compared to the busy-loop
// driver at the price of the OS wake-up latency in jitter.
type eventDriver struct {
	ch      *channel
	line    lines.OutputLine
	running atomic.Bool
	started bool
	done    chan struct{}
}

func newEventDriver(ch *channel, line lines.OutputLine) *eventDriver {
	return &eventDriver{
		ch:   ch,
		line: line,
		done: make(chan struct{}),
	}
}

// start signal generation. Blocks until the goroutine is running.
func (d *eventDriver) start() error {
	d.running.Store(true)
	d.started = true
	started := make(chan struct{})
	go d.run(started)
	<-started
	return nil
}

// apply is a no-op; the goroutine re-reads frequency and duty cycle
// at every cycle boundary.
func (d *eventDriver) apply() error {
	return nil
}

// stop signal generation, leaving the line LOW.
func (d *eventDriver) stop() error {
	if d.running.CompareAndSwap(true, false) && d.started {
		<-d.done
	}
	d.line.Write(false)
	if err := d.line.Release(); err != nil {
		return maskAny(err)
	}
	return nil
}

func (d *eventDriver) run(started chan<- struct{}) {
	defer close(d.done)
	close(started)
	d.ch.log.Debug().Msg("event pwm loop started")
	deadline := time.Now()
	for d.running.Load() {
		frequency := d.ch.getFrequency()
		duty := d.ch.getDuty()
		period := time.Duration(float64(time.Second) / frequency)
		onTime := time.Duration(float64(period) * duty / 100.0)
		offTime := period - onTime

		switch {
		case duty <= 0:
			// Steady LOW, no toggle overhead.
			d.line.Write(false)
			time.Sleep(steadyLevelInterval)
			deadline = time.Now()
		case duty >= 100:
			// Steady HIGH, no toggle overhead.
			d.line.Write(true)
			time.Sleep(steadyLevelInterval)
			deadline = time.Now()
		default:
			d.line.Write(true)
			deadline = deadline.Add(onTime)
			d.sleepUntil(deadline)
			if d.running.Load() {
				d.line.Write(false)
				deadline = deadline.Add(offTime)
				d.sleepUntil(deadline)
			}
		}

		// Resynchronize after falling badly behind (system suspend,
		// extreme load), otherwise the loop would free-run catching up.
		if time.Since(deadline) > period {
			deadline = time.Now()
		}
	}
	d.line.Write(false)
	d.ch.log.Debug().Msg("event pwm loop stopped")
}

// sleepUntil sleeps until the given deadline: the bulk of the wait on
// the monotonic clock via clock_nanosleep(TIMER_ABSTIME), the final
// stretch busy-waited for precision.
func (d *eventDriver) sleepUntil(deadline time.Time) {
	if remaining := time.Until(deadline) - busyWaitWindow; remaining > 0 {
		var now unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err == nil {
			target := unix.NsecToTimespec(now.Nano() + remaining.Nanoseconds())
			// Interrupted sleeps fall through to the busy-wait below.
			unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &target, nil)
		} else {
			time.Sleep(remaining)
		}
	}
	for d.running.Load() && time.Now().Before(deadline) {
		runtime.Gosched()
	}
}
