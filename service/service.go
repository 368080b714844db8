package service

import (
	"context"
	"time"

	pubsub "github.com/mattn/go-pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pinwheel-io/pinwheel/pkg/config"
	"github.com/pinwheel-io/pinwheel/pkg/util"
	"github.com/pinwheel-io/pinwheel/service/bridge"
	"github.com/pinwheel-io/pinwheel/service/intr"
	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
	"github.com/pinwheel-io/pinwheel/service/pwm"
)

// Service is the GPIO runtime: the single entry point owning all pin
// drivers of the process.
type Service interface {
	// AttachInterrupt starts edge monitoring on the given pin.
	// The handler may be nil to only publish events to subscribers.
	AttachInterrupt(pin int, handler intr.Handler, opts intr.Options) error
	// DetachInterrupt stops edge monitoring on the given pin.
	// Detaching a pin that is not attached is a no-op.
	DetachInterrupt(pin int) error
	// InterruptStatus returns the status of all attached interrupts.
	InterruptStatus() []intr.Status

	// StartPWM begins PWM generation on the given pin.
	StartPWM(pin int, frequencyHz, dutyPercent float64, backend pwm.Backend) (pwm.ChannelID, error)
	// SetDutyCycle updates the duty cycle of an active channel.
	SetDutyCycle(id pwm.ChannelID, dutyPercent float64) error
	// SetFrequency updates the frequency of an active channel.
	SetFrequency(id pwm.ChannelID, frequencyHz float64) error
	// StopPWM ends PWM generation on the given channel.
	StopPWM(id pwm.ChannelID) error
	// SupportsHardwarePWM returns true when the pin has native PWM.
	SupportsHardwarePWM(pin int) bool
	// PWMStatus returns the status of all active PWM channels.
	PWMStatus() []pwm.Status

	// SetOutput drives the given pin as a plain digital output.
	// The first write claims the pin.
	SetOutput(pin int, on bool) error
	// GetInput reads the given pin as a plain digital input.
	// The first read claims the pin with the given bias.
	GetInput(pin int, bias lines.Bias) (bool, error)
	// ReleasePin releases a plain digital claim on the given pin.
	ReleasePin(pin int) error

	// Subscribe registers a callback for all accepted edge events.
	Subscribe(cb func(EdgeEvent)) error
	// Unsubscribe removes a previously registered callback.
	Unsubscribe(cb func(EdgeEvent)) error

	// Run the service until the given context is canceled.
	Run(ctx context.Context) error
	// Close detaches all interrupts and stops all PWM channels.
	Close() error
}

// EdgeEvent is published to subscribers for every accepted edge.
type EdgeEvent struct {
	Pin       int           `json:"pin"`
	Rising    bool          `json:"rising"`
	Timestamp time.Duration `json:"timestamp"`
	Seqno     uint32        `json:"seqno"`
	// When is the wall clock time the event was dispatched.
	When time.Time `json:"when"`
}

// Config of the GPIO runtime.
type Config struct {
	ProgramVersion string
	// SysfsRoot of the kernel PWM control surface.
	// Empty selects the default.
	SysfsRoot string
}

// Dependencies of the GPIO runtime.
type Dependencies struct {
	Log      zerolog.Logger
	Provider lines.Provider
	Bridge   bridge.API
	// Hardware maps pins to native PWM channels. May be nil.
	Hardware pwm.HardwareMapper
}

type service struct {
	Config
	Dependencies

	registry *pins.Registry
	intr     *intr.Manager
	pwm      *pwm.Manager
	digital  digital
	events   *pubsub.PubSub
}

// NewService creates a GPIO runtime and returns it.
// Multiple independent runtimes can coexist as long as they drive
// disjoint pins.
func NewService(conf Config, deps Dependencies) (Service, error) {
	deps.Log = deps.Log.With().Str("component", "service").Logger()
	if deps.Provider == nil {
		return nil, errors.New("Provider is nil")
	}
	if deps.Bridge == nil {
		deps.Bridge = bridge.NewStubBridge()
	}
	registry := pins.NewRegistry()
	s := &service{
		Config:       conf,
		Dependencies: deps,
		registry:     registry,
		digital: digital{
			inputs:  make(map[int]lines.InputLine),
			outputs: make(map[int]lines.OutputLine),
		},
		events: pubsub.New(),
	}
	s.intr = intr.NewManager(intr.Dependencies{
		Log:      deps.Log,
		Provider: deps.Provider,
		Pins:     registry,
	})
	s.pwm = pwm.NewManager(pwm.Config{SysfsRoot: conf.SysfsRoot}, pwm.Dependencies{
		Log:      deps.Log,
		Provider: deps.Provider,
		Pins:     registry,
		Hardware: deps.Hardware,
	})
	return s, nil
}

// AttachInterrupt starts edge monitoring on the given pin.
func (s *service) AttachInterrupt(pin int, handler intr.Handler, opts intr.Options) error {
	// Wrap the handler so subscribers see every accepted edge,
	// whether or not a direct handler is attached.
	wrapped := intr.HandlerFunc(func(evt lines.Event) {
		s.events.Pub(EdgeEvent{
			Pin:       evt.Pin,
			Rising:    evt.Rising,
			Timestamp: evt.Timestamp,
			Seqno:     evt.Seqno,
			When:      time.Now(),
		})
		if handler != nil {
			handler.HandleEdge(evt)
		}
	})
	if err := s.intr.Attach(pin, wrapped, opts); err != nil {
		return maskAny(err)
	}
	return nil
}

// DetachInterrupt stops edge monitoring on the given pin.
func (s *service) DetachInterrupt(pin int) error {
	if err := s.intr.Detach(pin); err != nil {
		return maskAny(err)
	}
	return nil
}

// InterruptStatus returns the status of all attached interrupts.
func (s *service) InterruptStatus() []intr.Status {
	return s.intr.StatusAll()
}

// StartPWM begins PWM generation on the given pin.
func (s *service) StartPWM(pin int, frequencyHz, dutyPercent float64, backend pwm.Backend) (pwm.ChannelID, error) {
	id, err := s.pwm.Start(pin, frequencyHz, dutyPercent, backend)
	if err != nil {
		return 0, maskAny(err)
	}
	return id, nil
}

// SetDutyCycle updates the duty cycle of an active channel.
func (s *service) SetDutyCycle(id pwm.ChannelID, dutyPercent float64) error {
	return s.pwm.SetDutyCycle(id, dutyPercent)
}

// SetFrequency updates the frequency of an active channel.
func (s *service) SetFrequency(id pwm.ChannelID, frequencyHz float64) error {
	return s.pwm.SetFrequency(id, frequencyHz)
}

// StopPWM ends PWM generation on the given channel.
func (s *service) StopPWM(id pwm.ChannelID) error {
	return s.pwm.Stop(id)
}

// SupportsHardwarePWM returns true when the pin has native PWM.
func (s *service) SupportsHardwarePWM(pin int) bool {
	return s.pwm.SupportsHardwarePWM(pin)
}

// PWMStatus returns the status of all active PWM channels.
func (s *service) PWMStatus() []pwm.Status {
	return s.pwm.StatusAll()
}

// Subscribe registers a callback for all accepted edge events.
func (s *service) Subscribe(cb func(EdgeEvent)) error {
	if err := s.events.Sub(cb); err != nil {
		return maskAny(err)
	}
	return nil
}

// Unsubscribe removes a previously registered callback.
func (s *service) Unsubscribe(cb func(EdgeEvent)) error {
	s.events.Leave(cb)
	return nil
}

// Run the service until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	log := s.Log
	log.Info().Str("version", s.ProgramVersion).Msg("GPIO runtime started")
	s.Bridge.SetRedLED(false)
	s.Bridge.BlinkGreenLED(time.Millisecond * 250)

	<-ctx.Done()

	log.Debug().Msg("Context canceled, closing down")
	if err := s.Close(); err != nil {
		s.Bridge.SetRedLED(true)
		return maskAny(err)
	}
	s.Bridge.SetGreenLED(false)
	return nil
}

// Close detaches all interrupts and stops all PWM channels.
func (s *service) Close() error {
	var se util.SyncError
	se.Add(s.intr.Close())
	se.Add(s.pwm.Close())
	se.Add(s.closeDigital())
	se.Add(s.Bridge.Close())
	return se.AsError()
}

// ApplyConfig attaches the monitors and starts the outputs named in
// the given configuration.
func ApplyConfig(s Service, conf config.Config, log zerolog.Logger) error {
	for _, m := range conf.Monitors {
		edge, err := lines.ParseEdge(m.Edge)
		if err != nil {
			return maskAny(err)
		}
		opts := intr.Options{
			Edge:     edge,
			Bias:     parseBias(m.Bias),
			Debounce: m.Debounce,
		}
		if err := s.AttachInterrupt(m.Pin, nil, opts); err != nil {
			return maskAny(err)
		}
		log.Info().Int("pin", m.Pin).Str("edge", edge.String()).Msg("Monitor attached")
	}
	for _, o := range conf.Outputs {
		backend, err := pwm.ParseBackend(o.Backend)
		if err != nil {
			return maskAny(err)
		}
		frequency := o.Frequency
		if frequency == 0 {
			frequency = pwm.DefaultFrequency
		}
		id, err := s.StartPWM(o.Pin, frequency, o.Duty, backend)
		if err != nil {
			return maskAny(err)
		}
		log.Info().
			Int("pin", o.Pin).
			Str("backend", backend.String()).
			Float64("frequency", frequency).
			Msgf("PWM channel %d started", id)
	}
	return nil
}

func parseBias(s string) lines.Bias {
	switch s {
	case "pull-up":
		return lines.BiasPullUp
	case "pull-down":
		return lines.BiasPullDown
	default:
		return lines.BiasAsIs
	}
}
