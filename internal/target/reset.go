package target

import (
	"time"

	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Default power-cycle timing.
const (
	DefaultOffTime    = 100 * time.Millisecond
	DefaultSettleTime = 10 * time.Millisecond
)

// Reset power-cycles the board through a GPIO driving its supply (or RUN
// pin), so the updater runs on the next boot.
type Reset struct {
	low     func() error
	high    func() error
	cleanup func()
	sleep   func(time.Duration)

	OffTime    time.Duration
	SettleTime time.Duration
}

// OpenReset claims pin as an output, initially high (board powered).
func OpenReset(pin int) (*Reset, error) {
	if pin < 0 {
		return nil, errors.Errorf("invalid reset gpio %d", pin)
	}
	p, err := gpio.NewOutput(uint(pin), true)
	if err != nil {
		return nil, errors.Wrapf(err, "could not setup gpio %d", pin)
	}
	return &Reset{
		low:        p.Low,
		high:       p.High,
		cleanup:    p.Cleanup,
		sleep:      time.Sleep,
		OffTime:    DefaultOffTime,
		SettleTime: DefaultSettleTime,
	}, nil
}

// PowerCycle drops the line, waits, and raises it again.
func (r *Reset) PowerCycle() error {
	logrus.Debug("target power off")
	if err := r.low(); err != nil {
		return errors.Wrap(err, "could not power off target")
	}
	r.sleep(r.OffTime)
	if err := r.high(); err != nil {
		return errors.Wrap(err, "could not power on target")
	}
	r.sleep(r.SettleTime)
	logrus.Debug("target power on")
	return nil
}

// Close releases the GPIO.
func (r *Reset) Close() {
	if r.cleanup != nil {
		r.cleanup()
	}
}
