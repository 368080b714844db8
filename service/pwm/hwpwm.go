package pwm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultSysfsRoot = "/sys/class/pwm"

	// How long to wait for sysfs to create the channel directory
	// after an export.
	exportTimeout  = time.Millisecond * 500
	exportInterval = time.Millisecond * 10
)

// hardwareDriver programs a kernel PWM channel through its sysfs
// control surface. No goroutine is involved; setters are synchronous
// attribute writes.
type hardwareDriver struct {
	ch       *channel
	chipPath string
	pwmPath  string
	hwChan   int

	mutex    sync.Mutex
	exported bool
	enabled  bool
	periodNs uint64
	dutyNs   uint64
}

func newHardwareDriver(ch *channel, sysfsRoot string, chip, hwChan int) *hardwareDriver {
	chipPath := filepath.Join(sysfsRoot, fmt.Sprintf("pwmchip%d", chip))
	return &hardwareDriver{
		ch:       ch,
		chipPath: chipPath,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", hwChan)),
		hwChan:   hwChan,
	}
}

// start exports the channel and programs period, duty cycle and
// enable.
func (d *hardwareDriver) start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.export(); err != nil {
		return maskAny(err)
	}
	// Optional attribute, not all chips expose it.
	d.writeAttr("polarity", "normal")
	periodNs, dutyNs := d.computeNs()
	// Period must be written before duty cycle.
	if err := d.writeAttr("period", strconv.FormatUint(periodNs, 10)); err != nil {
		return maskAny(err)
	}
	d.periodNs = periodNs
	if err := d.writeAttr("duty_cycle", strconv.FormatUint(dutyNs, 10)); err != nil {
		return maskAny(err)
	}
	d.dutyNs = dutyNs
	if err := d.writeAttr("enable", "1"); err != nil {
		return maskAny(err)
	}
	d.enabled = true
	return nil
}

// apply pushes the channel's current frequency and duty cycle to the
// hardware. Period changes disable the channel while reprogramming,
// as some PWM hardware requires.
func (d *hardwareDriver) apply() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.exported {
		return errors.Wrapf(NotRunningError, "pin %d", d.ch.pin)
	}
	periodNs, dutyNs := d.computeNs()
	if periodNs != d.periodNs {
		wasEnabled := d.enabled
		if wasEnabled {
			if err := d.writeAttr("enable", "0"); err != nil {
				return maskAny(err)
			}
			d.enabled = false
		}
		// Shrink duty first so it never exceeds the pending period.
		if dutyNs < d.dutyNs {
			if err := d.writeAttr("duty_cycle", strconv.FormatUint(dutyNs, 10)); err != nil {
				return maskAny(err)
			}
			d.dutyNs = dutyNs
		}
		if err := d.writeAttr("period", strconv.FormatUint(periodNs, 10)); err != nil {
			return maskAny(err)
		}
		d.periodNs = periodNs
		if wasEnabled {
			defer func() {
				if d.writeAttr("enable", "1") == nil {
					d.enabled = true
				}
			}()
		}
	}
	if dutyNs != d.dutyNs {
		if err := d.writeAttr("duty_cycle", strconv.FormatUint(dutyNs, 10)); err != nil {
			return maskAny(err)
		}
		d.dutyNs = dutyNs
	}
	return nil
}

// stop disables the channel, forces the duty cycle to zero (defined
// LOW idle level) and unexports the channel.
func (d *hardwareDriver) stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.exported {
		return nil
	}
	d.writeAttr("duty_cycle", "0")
	if d.enabled {
		d.writeAttr("enable", "0")
		d.enabled = false
	}
	if err := os.WriteFile(filepath.Join(d.chipPath, "unexport"),
		[]byte(strconv.Itoa(d.hwChan)), 0644); err != nil {
		return errors.Wrapf(AttributeWriteError, "unexport: %s", err.Error())
	}
	d.exported = false
	return nil
}

// computeNs converts the channel's frequency and duty cycle to the
// nanosecond attributes of the kernel interface.
func (d *hardwareDriver) computeNs() (periodNs, dutyNs uint64) {
	periodNs = uint64(float64(time.Second.Nanoseconds()) / d.ch.getFrequency())
	dutyNs = uint64(float64(periodNs) * d.ch.getDuty() / 100.0)
	return periodNs, dutyNs
}

// export makes the channel visible in sysfs, waiting for the kernel
// to create the attribute directory.
func (d *hardwareDriver) export() error {
	if d.exported {
		return nil
	}
	// Already exported by an earlier run?
	if _, err := os.Stat(filepath.Join(d.pwmPath, "period")); err == nil {
		d.exported = true
		return nil
	}
	if err := os.WriteFile(filepath.Join(d.chipPath, "export"),
		[]byte(strconv.Itoa(d.hwChan)), 0644); err != nil {
		return errors.Wrapf(AttributeWriteError, "export: %s", err.Error())
	}
	deadline := time.Now().Add(exportTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(d.pwmPath, "period")); err == nil {
			d.exported = true
			return nil
		}
		time.Sleep(exportInterval)
	}
	return errors.Wrapf(AttributeWriteError, "export of %s timed out", d.pwmPath)
}

func (d *hardwareDriver) writeAttr(name, value string) error {
	path := filepath.Join(d.pwmPath, name)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return errors.Wrapf(AttributeWriteError, "%s: %s", path, err.Error())
	}
	return nil
}
