package pwm

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
)

// ChannelID identifies an active PWM channel.
// It equals the pin number the channel drives.
type ChannelID int

// HardwareMapper resolves pins to native PWM channels.
type HardwareMapper interface {
	// HardwarePWMChannel returns the PWM chip and channel for the
	// given pin, or ok=false when the pin has no native PWM.
	HardwarePWMChannel(pin int) (chip, channel int, ok bool)
}

// Config of a PWM manager.
type Config struct {
	// SysfsRoot is the root of the kernel PWM control surface.
	// Defaults to /sys/class/pwm.
	SysfsRoot string
}

// Dependencies of a PWM manager.
type Dependencies struct {
	Log      zerolog.Logger
	Provider lines.Provider
	Pins     *pins.Registry
	Hardware HardwareMapper
}

// Manager owns the PWM channels of a GPIO runtime, across all
// backends. At most one channel is active per pin.
type Manager struct {
	Config
	Dependencies

	mutex    sync.Mutex
	channels map[ChannelID]*channel
}

// NewManager creates an empty PWM manager.
func NewManager(conf Config, deps Dependencies) *Manager {
	if conf.SysfsRoot == "" {
		conf.SysfsRoot = defaultSysfsRoot
	}
	deps.Log = deps.Log.With().Str("component", "pwm").Logger()
	return &Manager{
		Config:       conf,
		Dependencies: deps,
		channels:     make(map[ChannelID]*channel),
	}
}

// channel is the state shared between the manager and a driver.
// Frequency and duty cycle are stored as atomics so software drivers
// can re-read them at every cycle boundary without locking.
type channel struct {
	pin     int
	backend Backend
	// Float64 bits
	frequency uint64
	duty      uint64
	drv       driver
	log       zerolog.Logger
}

func (c *channel) setFrequency(hz float64) {
	atomic.StoreUint64(&c.frequency, math.Float64bits(hz))
}

func (c *channel) getFrequency() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.frequency))
}

func (c *channel) setDuty(pct float64) {
	atomic.StoreUint64(&c.duty, math.Float64bits(pct))
}

func (c *channel) getDuty() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.duty))
}

// driver generates the signal of one channel.
type driver interface {
	// start signal generation. Blocks until the driver is running.
	start() error
	// apply pending frequency/duty changes.
	// Software drivers pick changes up at the next cycle boundary.
	apply() error
	// stop signal generation, leaving the line LOW.
	stop() error
}

// Start begins PWM generation on the given pin.
// The duty cycle is clamped to [0,100] percent, the frequency to the
// valid range of the chosen backend.
func (m *Manager) Start(pin int, frequencyHz, dutyPercent float64, backend Backend) (ChannelID, error) {
	if frequencyHz <= 0 {
		return 0, errors.Wrapf(InvalidFrequencyError, "%g Hz", frequencyHz)
	}
	frequencyHz = clampFrequency(frequencyHz, backend)
	dutyPercent = clampDuty(dutyPercent)

	id := ChannelID(pin)
	if m.IsActive(pin) {
		return 0, errors.Wrapf(AlreadyRunningError, "pin %d", pin)
	}
	if err := m.Pins.Claim(pin, pins.OwnerPWM); err != nil {
		return 0, maskAny(err)
	}

	ch := &channel{
		pin:     pin,
		backend: backend,
		log: m.Log.With().
			Int("pin", pin).
			Str("backend", backend.String()).
			Logger(),
	}
	ch.setFrequency(frequencyHz)
	ch.setDuty(dutyPercent)

	drv, err := m.newDriver(ch)
	if err != nil {
		m.Pins.Release(pin)
		return 0, maskAny(err)
	}
	ch.drv = drv

	if err := drv.start(); err != nil {
		drv.stop()
		m.Pins.Release(pin)
		return 0, maskAny(err)
	}

	m.mutex.Lock()
	if _, found := m.channels[id]; found {
		// Lost a race on the same pin.
		m.mutex.Unlock()
		drv.stop()
		m.Pins.Release(pin)
		return 0, errors.Wrapf(AlreadyRunningError, "pin %d", pin)
	}
	m.channels[id] = ch
	m.mutex.Unlock()

	channelsActiveGauge.WithLabelValues(backend.String()).Inc()
	channelsStartedTotal.WithLabelValues(backend.String()).Inc()
	dutyCycleGauge.WithLabelValues(strconv.Itoa(pin)).Set(dutyPercent)
	frequencyGauge.WithLabelValues(strconv.Itoa(pin)).Set(frequencyHz)
	ch.log.Debug().
		Float64("frequency", frequencyHz).
		Float64("duty", dutyPercent).
		Msg("pwm started")
	return id, nil
}

// newDriver creates the driver for the channel's backend.
func (m *Manager) newDriver(ch *channel) (driver, error) {
	switch ch.backend {
	case BackendSoftware:
		line, err := m.Provider.ClaimOutput(ch.pin, false)
		if err != nil {
			return nil, maskAny(err)
		}
		return newSoftDriver(ch, line), nil
	case BackendEvent:
		line, err := m.Provider.ClaimOutput(ch.pin, false)
		if err != nil {
			return nil, maskAny(err)
		}
		return newEventDriver(ch, line), nil
	case BackendHardware:
		if m.Hardware == nil {
			return nil, errors.Wrapf(HardwareUnsupportedError, "pin %d", ch.pin)
		}
		chip, hwChannel, ok := m.Hardware.HardwarePWMChannel(ch.pin)
		if !ok {
			return nil, errors.Wrapf(HardwareUnsupportedError, "pin %d", ch.pin)
		}
		return newHardwareDriver(ch, m.SysfsRoot, chip, hwChannel), nil
	default:
		return nil, errors.Wrapf(InvalidBackendError, "backend %d", ch.backend)
	}
}

// SetDutyCycle updates the duty cycle of an active channel.
// Software backends pick the change up at the next cycle boundary.
func (m *Manager) SetDutyCycle(id ChannelID, dutyPercent float64) error {
	ch, err := m.get(id)
	if err != nil {
		return maskAny(err)
	}
	dutyPercent = clampDuty(dutyPercent)
	ch.setDuty(dutyPercent)
	if err := ch.drv.apply(); err != nil {
		return maskAny(err)
	}
	dutyCycleGauge.WithLabelValues(strconv.Itoa(ch.pin)).Set(dutyPercent)
	return nil
}

// SetDutyCycle8Bit updates the duty cycle from an Arduino style
// 0-255 value.
func (m *Manager) SetDutyCycle8Bit(id ChannelID, value uint8) error {
	return m.SetDutyCycle(id, dutyFrom8Bit(value))
}

// SetFrequency updates the frequency of an active channel, clamped to
// the valid range of its backend. The duty cycle percentage is kept.
func (m *Manager) SetFrequency(id ChannelID, frequencyHz float64) error {
	ch, err := m.get(id)
	if err != nil {
		return maskAny(err)
	}
	if frequencyHz <= 0 {
		return errors.Wrapf(InvalidFrequencyError, "%g Hz", frequencyHz)
	}
	frequencyHz = clampFrequency(frequencyHz, ch.backend)
	ch.setFrequency(frequencyHz)
	if err := ch.drv.apply(); err != nil {
		return maskAny(err)
	}
	frequencyGauge.WithLabelValues(strconv.Itoa(ch.pin)).Set(frequencyHz)
	return nil
}

// Stop ends PWM generation on the given channel, leaving the line LOW
// and releasing it. Stopping an inactive channel is a no-op.
func (m *Manager) Stop(id ChannelID) error {
	m.mutex.Lock()
	ch, found := m.channels[id]
	if found {
		delete(m.channels, id)
	}
	m.mutex.Unlock()
	if !found {
		return nil
	}

	if err := ch.drv.stop(); err != nil {
		// Teardown is defined never to fail once begun; log and
		// continue releasing the pin.
		ch.log.Error().Err(err).Msg("pwm driver stop failed")
	}
	m.Pins.Release(ch.pin)

	channelsActiveGauge.WithLabelValues(ch.backend.String()).Dec()
	dutyCycleGauge.DeleteLabelValues(strconv.Itoa(ch.pin))
	frequencyGauge.DeleteLabelValues(strconv.Itoa(ch.pin))
	ch.log.Debug().Msg("pwm stopped")
	return nil
}

// IsActive returns true when the given pin has an active PWM channel.
func (m *Manager) IsActive(pin int) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, found := m.channels[ChannelID(pin)]
	return found
}

// ActiveCount returns the number of active PWM channels.
func (m *Manager) ActiveCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.channels)
}

// DutyCycle returns the duty cycle of an active channel.
func (m *Manager) DutyCycle(id ChannelID) (float64, error) {
	ch, err := m.get(id)
	if err != nil {
		return 0, maskAny(err)
	}
	return ch.getDuty(), nil
}

// Frequency returns the frequency of an active channel.
func (m *Manager) Frequency(id ChannelID) (float64, error) {
	ch, err := m.get(id)
	if err != nil {
		return 0, maskAny(err)
	}
	return ch.getFrequency(), nil
}

// SupportsHardwarePWM returns true when the given pin has a native
// PWM channel. Callers use this to pick a backend.
func (m *Manager) SupportsHardwarePWM(pin int) bool {
	if m.Hardware == nil {
		return false
	}
	_, _, ok := m.Hardware.HardwarePWMChannel(pin)
	return ok
}

// Status describes one active PWM channel.
type Status struct {
	Pin         int
	Backend     Backend
	FrequencyHz float64
	DutyPercent float64
}

// StatusAll returns the status of all active channels.
func (m *Manager) StatusAll() []Status {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	result := make([]Status, 0, len(m.channels))
	for _, ch := range m.channels {
		result = append(result, Status{
			Pin:         ch.pin,
			Backend:     ch.backend,
			FrequencyHz: ch.getFrequency(),
			DutyPercent: ch.getDuty(),
		})
	}
	return result
}

// Close stops all channels.
func (m *Manager) Close() error {
	m.mutex.Lock()
	active := make([]ChannelID, 0, len(m.channels))
	for id := range m.channels {
		active = append(active, id)
	}
	m.mutex.Unlock()

	var ae aerr.AggregateError
	for _, id := range active {
		ae.Add(m.Stop(id))
	}
	return ae.AsError()
}

func (m *Manager) get(id ChannelID) (*channel, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ch, found := m.channels[id]
	if !found {
		return nil, errors.Wrapf(NotRunningError, "pin %d", int(id))
	}
	return ch, nil
}
