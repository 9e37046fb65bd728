package magnet

import (
	"fmt"
	"time"

	"github.com/nasa-jpl/adrctl/util"
)

// ErrScheduleInvalidState is returned when ScheduleCooldown is called
// outside Off/Deramping (spec §4.2: "legal only in off/deramping").
var ErrScheduleInvalidState = fmt.Errorf("magnet: schedule_cooldown only valid from off or deramping")

// MinTimeToCool estimates the minimum wall-clock time to reach cold as a
// full ramp from zero to soak current + soak time + a full deramp (the
// constants are deployment-tuned and carried in Config). The estimate
// depends on Config only, not on the machine's current state or current.
func (m *Machine) MinTimeToCool() time.Duration {
	rampTime := time.Duration(0)
	if m.cfg.RampRateAPerS > 0 {
		rampTime = util.SecsToDuration(m.cfg.SoakCurrentA / m.cfg.RampRateAPerS)
	}
	derampTime := time.Duration(0)
	if m.cfg.DerampRateAPerS < 0 {
		derampTime = util.SecsToDuration(m.cfg.SoakCurrentA / -m.cfg.DerampRateAPerS)
	}
	return rampTime + m.cfg.SoakTime + derampTime
}

// ScheduleCooldown arms a single timer that fires Start at
// targetTime-MinTimeToCool(). A second call cancels the first (spec
// §4.2, §8 idempotence law).
func (m *Machine) ScheduleCooldown(targetTime time.Time) error {
	m.mu.Lock()
	if m.state != Off && m.state != Deramping {
		m.mu.Unlock()
		return ErrScheduleInvalidState
	}
	fireAt := targetTime.Add(-m.MinTimeToCool())
	m.cancelScheduledLocked()
	delay := fireAt.Sub(m.cap.Now())
	if delay < 0 {
		delay = 0
	}
	m.scheduledFor = targetTime
	m.scheduled = time.AfterFunc(delay, func() {
		if err := m.Start(); err != nil {
			m.logf("scheduled cooldown start: %v", err)
		}
		m.mu.Lock()
		m.scheduled = nil
		m.mu.Unlock()
	})
	m.mu.Unlock()
	return nil
}

// CancelScheduledCooldown cancels any outstanding timer. Idempotent
// (spec §8: "leaves the machine in its prior state with no pending
// timer").
func (m *Machine) CancelScheduledCooldown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelScheduledLocked()
}

func (m *Machine) cancelScheduledLocked() {
	if m.scheduled != nil {
		m.scheduled.Stop()
		m.scheduled = nil
	}
}
