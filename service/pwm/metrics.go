package pwm

import (
	"github.com/pinwheel-io/pinwheel/pkg/metrics"
)

const (
	subSystem = "pwm"
)

var (
	// Number of active PWM channels per backend
	channelsActiveGauge = metrics.MustRegisterGaugeVec(subSystem,
		"channels_active",
		"Number of active PWM channels",
		"backend")

	// Number of started PWM channels per backend
	channelsStartedTotal = metrics.MustRegisterCounterVec(subSystem,
		"channels_started_total",
		"Number of started PWM channels",
		"backend")

	// Current duty cycle per pin
	dutyCycleGauge = metrics.MustRegisterGaugeVec(subSystem,
		"duty_cycle_percent",
		"Current duty cycle of a PWM channel",
		"pin")

	// Current frequency per pin
	frequencyGauge = metrics.MustRegisterGaugeVec(subSystem,
		"frequency_hz",
		"Current frequency of a PWM channel",
		"pin")
)
