package intr

import (
	"github.com/pinwheel-io/pinwheel/pkg/metrics"
)

const (
	subSystem = "intr"
)

var (
	// Number of currently attached interrupts
	interruptsAttachedGauge = metrics.MustRegisterGauge(subSystem,
		"interrupts_attached",
		"Number of currently attached interrupts")

	// Number of dispatched interrupt callbacks
	callbacksTotal = metrics.MustRegisterCounterVec(subSystem,
		"callbacks_total",
		"Number of dispatched interrupt callbacks",
		"pin")

	// Number of edge events rejected by debouncing
	debounceRejectsTotal = metrics.MustRegisterCounterVec(subSystem,
		"debounce_rejects_total",
		"Number of edge events rejected by debouncing",
		"pin")

	// Number of panics recovered in interrupt callbacks
	callbackPanicsTotal = metrics.MustRegisterCounter(subSystem,
		"callback_panics_total",
		"Number of panics recovered in interrupt callbacks")

	// Number of monitors stopped by line failures
	interruptFailuresTotal = metrics.MustRegisterCounter(subSystem,
		"failures_total",
		"Number of monitors stopped by line failures")
)
