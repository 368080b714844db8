package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pinwheel-io/pinwheel/service/intr"
	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
	"github.com/pinwheel-io/pinwheel/service/pwm"
)

// PinInfo describes one driven pin in API responses.
type PinInfo struct {
	Pin    int    `json:"pin"`
	Driver string `json:"driver"`
	// Interrupt fields
	Edge       string `json:"edge,omitempty"`
	Debounce   string `json:"debounce,omitempty"`
	Dispatched uint64 `json:"dispatched,omitempty"`
	Rejected   uint64 `json:"rejected,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	// PWM fields
	Backend     string  `json:"backend,omitempty"`
	FrequencyHz float64 `json:"frequency_hz,omitempty"`
	DutyPercent float64 `json:"duty_percent,omitempty"`
}

// MonitorRequest is the body of POST /api/v1/monitors/:pin.
type MonitorRequest struct {
	Edge string `json:"edge"`
	// Debounce window such as "5ms".
	Debounce string `json:"debounce"`
	Bias     string `json:"bias"`
}

// PWMRequest is the body of POST and PUT /api/v1/pwm/:pin.
// Absent fields keep their current value on update.
type PWMRequest struct {
	FrequencyHz *float64 `json:"frequency_hz"`
	DutyPercent *float64 `json:"duty_percent"`
	Backend     string   `json:"backend"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK\n")
}

// handleListPins returns all driven pins.
func (s *Server) handleListPins(c echo.Context) error {
	result := make([]PinInfo, 0)
	for _, st := range s.runtime.InterruptStatus() {
		result = append(result, PinInfo{
			Pin:        st.Pin,
			Driver:     "interrupt",
			Edge:       st.Mode.String(),
			Debounce:   st.Debounce.String(),
			Dispatched: st.Dispatched,
			Rejected:   st.Rejected,
			Failed:     st.Failed,
		})
	}
	for _, st := range s.runtime.PWMStatus() {
		result = append(result, PinInfo{
			Pin:         st.Pin,
			Driver:      "pwm",
			Backend:     st.Backend.String(),
			FrequencyHz: st.FrequencyHz,
			DutyPercent: st.DutyPercent,
		})
	}
	return c.JSON(http.StatusOK, result)
}

// handleAttachMonitor attaches an edge monitor to a pin.
func (s *Server) handleAttachMonitor(c echo.Context) error {
	pin, err := pinParam(c)
	if err != nil {
		return err
	}
	var req MonitorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	edge, err := lines.ParseEdge(req.Edge)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid edge")
	}
	var debounce time.Duration
	if req.Debounce != "" {
		debounce, err = time.ParseDuration(req.Debounce)
		if err != nil || debounce < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid debounce")
		}
	}
	opts := intr.Options{Edge: edge, Bias: parseBias(req.Bias), Debounce: debounce}
	if err := s.runtime.AttachInterrupt(pin, nil, opts); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusCreated)
}

// handleDetachMonitor detaches the edge monitor of a pin.
func (s *Server) handleDetachMonitor(c echo.Context) error {
	pin, err := pinParam(c)
	if err != nil {
		return err
	}
	if err := s.runtime.DetachInterrupt(pin); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleStartPWM starts a PWM channel on a pin.
func (s *Server) handleStartPWM(c echo.Context) error {
	pin, err := pinParam(c)
	if err != nil {
		return err
	}
	var req PWMRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	backend, err := pwm.ParseBackend(req.Backend)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid backend")
	}
	frequency := pwm.DefaultFrequency
	if req.FrequencyHz != nil && *req.FrequencyHz != 0 {
		frequency = *req.FrequencyHz
	}
	var duty float64
	if req.DutyPercent != nil {
		duty = *req.DutyPercent
	}
	if _, err := s.runtime.StartPWM(pin, frequency, duty, backend); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusCreated)
}

// handleUpdatePWM updates frequency and/or duty cycle of an active
// channel.
func (s *Server) handleUpdatePWM(c echo.Context) error {
	pin, err := pinParam(c)
	if err != nil {
		return err
	}
	var req PWMRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.FrequencyHz == nil && req.DutyPercent == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}
	id := pwm.ChannelID(pin)
	if req.FrequencyHz != nil {
		if err := s.runtime.SetFrequency(id, *req.FrequencyHz); err != nil {
			return mapServiceError(err)
		}
	}
	if req.DutyPercent != nil {
		if err := s.runtime.SetDutyCycle(id, *req.DutyPercent); err != nil {
			return mapServiceError(err)
		}
	}
	return c.NoContent(http.StatusOK)
}

// handleStopPWM stops the PWM channel of a pin.
func (s *Server) handleStopPWM(c echo.Context) error {
	pin, err := pinParam(c)
	if err != nil {
		return err
	}
	if err := s.runtime.StopPWM(pwm.ChannelID(pin)); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pinParam(c echo.Context) (int, error) {
	pin, err := strconv.Atoi(c.Param("pin"))
	if err != nil || pin < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid pin")
	}
	return pin, nil
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

// mapServiceError maps runtime errors to HTTP status codes.
func mapServiceError(err error) error {
	switch {
	case pins.IsPinBusy(err), intr.IsAlreadyAttached(err), pwm.IsAlreadyRunning(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case pwm.IsNotRunning(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case pwm.IsInvalidFrequency(err), pwm.IsInvalidBackend(err),
		pwm.IsHardwareUnsupported(err), lines.IsInvalidEdge(err), lines.IsInvalidPin(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
