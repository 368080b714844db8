package pwm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinwheel-io/pinwheel/service/lines"
	"github.com/pinwheel-io/pinwheel/service/pins"
)

// testMapper maps the Raspberry Pi hardware PWM pins.
type testMapper struct{}

func (testMapper) HardwarePWMChannel(pin int) (int, int, bool) {
	switch pin {
	case 12, 18:
		return 0, 0, true
	case 13, 19:
		return 0, 1, true
	}
	return 0, 0, false
}

// fakeSysfs builds a pwmchip0 tree with a pre-exported channel, as the
// kernel would leave it after an export.
func fakeSysfs(t *testing.T, hwChan int) string {
	t.Helper()
	root := t.TempDir()
	pwmPath := filepath.Join(root, "pwmchip0", "pwm"+string(rune('0'+hwChan)))
	require.NoError(t, os.MkdirAll(pwmPath, 0755))
	for _, name := range []string{"period", "duty_cycle", "enable"} {
		require.NoError(t, os.WriteFile(filepath.Join(pwmPath, name), []byte("0"), 0644))
	}
	return root
}

func readAttr(t *testing.T, root string, hwChan int, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, "pwmchip0", "pwm"+string(rune('0'+hwChan)), name))
	require.NoError(t, err)
	return string(raw)
}

func newHardwareTestManager(t *testing.T, sysfsRoot string) *Manager {
	t.Helper()
	m := NewManager(Config{SysfsRoot: sysfsRoot}, Dependencies{
		Log:      zerolog.Nop(),
		Provider: lines.NewStub(),
		Pins:     pins.NewRegistry(),
		Hardware: testMapper{},
	})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestHardwareStart(t *testing.T) {
	root := fakeSysfs(t, 0)
	m := newHardwareTestManager(t, root)

	id, err := m.Start(18, 1000, 50, BackendHardware)
	require.NoError(t, err)

	// 1 kHz -> 1e6 ns period, 50% -> 5e5 ns duty.
	assert.Equal(t, "1000000", readAttr(t, root, 0, "period"))
	assert.Equal(t, "500000", readAttr(t, root, 0, "duty_cycle"))
	assert.Equal(t, "1", readAttr(t, root, 0, "enable"))

	require.NoError(t, m.Stop(id))
}

func TestHardwareSetDutyCycle(t *testing.T) {
	root := fakeSysfs(t, 0)
	m := newHardwareTestManager(t, root)

	id, err := m.Start(18, 1000, 50, BackendHardware)
	require.NoError(t, err)

	require.NoError(t, m.SetDutyCycle(id, 25))
	assert.Equal(t, "250000", readAttr(t, root, 0, "duty_cycle"))
	assert.Equal(t, "1000000", readAttr(t, root, 0, "period"))
	assert.Equal(t, "1", readAttr(t, root, 0, "enable"))

	require.NoError(t, m.Stop(id))
}

func TestHardwareSetFrequencyKeepsDutyFraction(t *testing.T) {
	root := fakeSysfs(t, 0)
	m := newHardwareTestManager(t, root)

	id, err := m.Start(18, 1000, 50, BackendHardware)
	require.NoError(t, err)

	// Halving the frequency doubles the period; the duty cycle stays
	// at 50% of the new period.
	require.NoError(t, m.SetFrequency(id, 500))
	assert.Equal(t, "2000000", readAttr(t, root, 0, "period"))
	assert.Equal(t, "1000000", readAttr(t, root, 0, "duty_cycle"))
	assert.Equal(t, "1", readAttr(t, root, 0, "enable"))

	require.NoError(t, m.Stop(id))
}

func TestHardwareStop(t *testing.T) {
	root := fakeSysfs(t, 0)
	m := newHardwareTestManager(t, root)

	id, err := m.Start(18, 1000, 50, BackendHardware)
	require.NoError(t, err)
	require.NoError(t, m.Stop(id))

	assert.Equal(t, "0", readAttr(t, root, 0, "duty_cycle"))
	assert.Equal(t, "0", readAttr(t, root, 0, "enable"))
	raw, err := os.ReadFile(filepath.Join(root, "pwmchip0", "unexport"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))

	// Stopping again is a no-op.
	require.NoError(t, m.Stop(id))
}

func TestHardwareSecondChannel(t *testing.T) {
	root := fakeSysfs(t, 1)
	m := newHardwareTestManager(t, root)

	id, err := m.Start(13, 2000, 10, BackendHardware)
	require.NoError(t, err)

	assert.Equal(t, "500000", readAttr(t, root, 1, "period"))
	assert.Equal(t, "50000", readAttr(t, root, 1, "duty_cycle"))

	require.NoError(t, m.Stop(id))
}

func TestHardwareUnmappedPin(t *testing.T) {
	root := fakeSysfs(t, 0)
	m := newHardwareTestManager(t, root)

	_, err := m.Start(17, 1000, 50, BackendHardware)
	require.Error(t, err)
	assert.True(t, IsHardwareUnsupported(err))

	assert.True(t, m.SupportsHardwarePWM(18))
	assert.False(t, m.SupportsHardwarePWM(17))
}

func TestHardwareExportTimeout(t *testing.T) {
	// Chip directory exists but the kernel never creates the channel
	// directory after the export write.
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pwmchip0"), 0755))
	m := newHardwareTestManager(t, root)

	_, err := m.Start(18, 1000, 50, BackendHardware)
	require.Error(t, err)
	assert.True(t, IsAttributeWrite(err))
	assert.False(t, m.IsActive(18))
}
