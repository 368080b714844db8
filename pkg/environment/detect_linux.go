package environment

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	deviceTreeModelPath = "/proc/device-tree/model"
	cpuInfoPath         = "/proc/cpuinfo"
	pwmSysfsRoot        = "/sys/class/pwm"
)

// Detect inspects the host and returns a description of the board the
// process is running on.
func Detect(log zerolog.Logger) *Platform {
	p := &Platform{
		Kind:          KindUnknown,
		Model:         readModel(),
		KernelRelease: kernelRelease(),
		PWMChips:      discoverPWMChips(pwmSysfsRoot),
	}
	p.Kind = classify(p.Model, p.KernelRelease)
	log.Debug().
		Str("kind", string(p.Kind)).
		Str("model", p.Model).
		Str("kernel", p.KernelRelease).
		Int("pwm_chips", len(p.PWMChips)).
		Msg("platform detected")
	return p
}

// classify derives the board kind from the device tree model string,
// falling back to the kernel release.
func classify(model, release string) Kind {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "raspberry pi"):
		return KindRaspberryPi
	case strings.Contains(lower, "orange pi"), strings.Contains(release, "sunxi"):
		return KindOrangePi
	}
	if strings.Contains(release, "arm") || strings.Contains(release, "aarch64") {
		return KindGenericARM
	}
	return KindUnknown
}

// readModel reads the device tree model string, falling back to the
// Model line of /proc/cpuinfo.
func readModel() string {
	if raw, err := os.ReadFile(deviceTreeModelPath); err == nil {
		// The device tree string is NUL terminated.
		return strings.TrimRight(string(raw), "\x00\n")
	}
	raw, err := os.ReadFile(cpuInfoPath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "Model") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				return strings.TrimSpace(line[idx+1:])
			}
		}
	}
	return ""
}

func kernelRelease() string {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		return ""
	}
	return strings.TrimRight(string(name.Release[:]), "\x00")
}

// discoverPWMChips lists the kernel PWM chips below the given sysfs
// root with their channel counts.
func discoverPWMChips(root string) []PWMChip {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var result []PWMChip
	for _, e := range entries {
		numberStr := strings.TrimPrefix(e.Name(), "pwmchip")
		if numberStr == e.Name() {
			continue
		}
		number, err := strconv.Atoi(numberStr)
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(root, e.Name(), "npwm"))
		if err != nil {
			continue
		}
		channels, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}
		result = append(result, PWMChip{Number: number, Channels: channels})
	}
	return result
}
