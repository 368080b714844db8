package environment

// Kind of board the process is running on.
type Kind string

const (
	KindRaspberryPi Kind = "raspberrypi"
	KindOrangePi    Kind = "orangepi"
	KindGenericARM  Kind = "generic-arm"
	KindUnknown     Kind = "unknown"
)

// Platform describes the detected host board and its GPIO facilities.
type Platform struct {
	// Kind of board.
	Kind Kind
	// Model string as reported by the device tree, empty when not
	// available.
	Model string
	// KernelRelease as reported by uname.
	KernelRelease string
	// PWMChips lists the kernel PWM chips found in sysfs, by number.
	PWMChips []PWMChip
}

// PWMChip describes one kernel PWM chip.
type PWMChip struct {
	// Number of the chip (pwmchip<Number>).
	Number int
	// Channels exposed by the chip.
	Channels int
}

// IsRaspberryPi returns true when running on a Raspberry Pi board.
func (p *Platform) IsRaspberryPi() bool {
	return p.Kind == KindRaspberryPi
}

// DefaultChip returns the GPIO character device name to open by
// default on this platform.
func (p *Platform) DefaultChip() string {
	return "gpiochip0"
}

// HardwarePWMChannel returns the PWM chip and channel wired to the
// given pin, or ok=false when the pin has no native PWM.
// On the Raspberry Pi, GPIO 12 and 18 share PWM0 and GPIO 13 and 19
// share PWM1, both on chip 0.
func (p *Platform) HardwarePWMChannel(pin int) (chip, channel int, ok bool) {
	if !p.IsRaspberryPi() {
		return 0, 0, false
	}
	switch pin {
	case 12, 18:
		chip, channel = 0, 0
	case 13, 19:
		chip, channel = 0, 1
	default:
		return 0, 0, false
	}
	for _, c := range p.PWMChips {
		if c.Number == chip && channel < c.Channels {
			return chip, channel, true
		}
	}
	return 0, 0, false
}
