package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ValidationError indicates a config file with invalid content.
	ValidationError = errors.New("invalid configuration")
	IsValidation    = isErrorFunc(ValidationError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// Config is the on-disk configuration of the daemon.
type Config struct {
	// Chip is the GPIO character device to open ("gpiochip0").
	// The special value "stub" selects the in-memory provider.
	Chip string `yaml:"chip,omitempty"`
	// Monitors lists the pins to attach edge monitors to at startup.
	Monitors []Monitor `yaml:"monitors,omitempty"`
	// Outputs lists the PWM outputs to start at startup.
	Outputs []Output `yaml:"outputs,omitempty"`
	// MQTT configures the optional MQTT event publisher.
	MQTT MQTT `yaml:"mqtt,omitempty"`
}

// Monitor configures one edge monitored pin.
type Monitor struct {
	Pin int `yaml:"pin"`
	// Edge to watch: rising, falling or both. Defaults to both.
	Edge string `yaml:"edge,omitempty"`
	// Debounce window; edges within the window of the last accepted
	// edge are dropped.
	Debounce time.Duration `yaml:"debounce,omitempty"`
	// Bias of the line: pull-up, pull-down or as-is.
	Bias string `yaml:"bias,omitempty"`
}

// Output configures one PWM output.
type Output struct {
	Pin int `yaml:"pin"`
	// Frequency in Hz. Defaults to 490.
	Frequency float64 `yaml:"frequency,omitempty"`
	// Duty cycle in percent.
	Duty float64 `yaml:"duty"`
	// Backend: software, event or hardware. Defaults to event.
	Backend string `yaml:"backend,omitempty"`
}

// MQTT configures the MQTT event publisher.
type MQTT struct {
	// Broker URL such as tcp://localhost:1883. Empty disables MQTT.
	Broker string `yaml:"broker,omitempty"`
	// TopicPrefix of published events. Defaults to "pinwheel".
	TopicPrefix string `yaml:"topic-prefix,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

// New returns a Config with defaults filled in.
func New() Config {
	return Config{
		Chip: "gpiochip0",
		MQTT: MQTT{TopicPrefix: "pinwheel"},
	}
}

// Load reads and validates the config file at the given path.
func Load(path string) (Config, error) {
	c := New()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, maskAny(err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, errors.Wrapf(ValidationError, "%s: %s", path, err.Error())
	}
	if err := c.Validate(); err != nil {
		return c, maskAny(err)
	}
	return c, nil
}

// Validate the configuration.
func (c Config) Validate() error {
	seen := make(map[int]string)
	for _, m := range c.Monitors {
		if m.Pin < 0 {
			return errors.Wrapf(ValidationError, "monitor pin %d", m.Pin)
		}
		if owner, found := seen[m.Pin]; found {
			return errors.Wrapf(ValidationError, "pin %d used by both monitor and %s", m.Pin, owner)
		}
		seen[m.Pin] = "monitor"
		switch m.Edge {
		case "", "rising", "falling", "both":
		default:
			return errors.Wrapf(ValidationError, "monitor pin %d: edge '%s'", m.Pin, m.Edge)
		}
		switch m.Bias {
		case "", "as-is", "pull-up", "pull-down":
		default:
			return errors.Wrapf(ValidationError, "monitor pin %d: bias '%s'", m.Pin, m.Bias)
		}
		if m.Debounce < 0 {
			return errors.Wrapf(ValidationError, "monitor pin %d: negative debounce", m.Pin)
		}
	}
	for _, o := range c.Outputs {
		if o.Pin < 0 {
			return errors.Wrapf(ValidationError, "output pin %d", o.Pin)
		}
		if owner, found := seen[o.Pin]; found {
			return errors.Wrapf(ValidationError, "pin %d used by both output and %s", o.Pin, owner)
		}
		seen[o.Pin] = "output"
		if o.Frequency < 0 {
			return errors.Wrapf(ValidationError, "output pin %d: negative frequency", o.Pin)
		}
		if o.Duty < 0 || o.Duty > 100 {
			return errors.Wrapf(ValidationError, "output pin %d: duty %g out of range", o.Pin, o.Duty)
		}
		switch o.Backend {
		case "", "software", "busy", "event", "hardware":
		default:
			return errors.Wrapf(ValidationError, "output pin %d: backend '%s'", o.Pin, o.Backend)
		}
	}
	return nil
}
