package magnet

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nasa-jpl/adrctl/util"
)

// ErrStateBlocked is returned when a setting command is refused because
// the state's block table forbids it (spec §4.3, §7 StateError).
var ErrStateBlocked = fmt.Errorf("magnet: setting blocked in current state")

// BlockTable maps a state to the set of setting keys refused in it (spec
// §4.3). The zero value blocks nothing.
type BlockTable map[State]map[string]bool

// Blocked reports whether setting is refused in state.
func (b BlockTable) Blocked(state State, setting string) bool {
	if b == nil {
		return false
	}
	return b[state][setting]
}

// DefaultBlockTable blocks manual setpoint and mode changes, and the
// bridge reset, while the machine is actively sequencing or regulating,
// mirroring
// sim960Agent.py's BLOCKS table (e.g. refusing a manual setpoint write
// while regulating).
func DefaultBlockTable() BlockTable {
	manual := map[string]bool{
		"device-settings:sim960:vin-setpoint": true,
		"device-settings:sim960:pid-mode":     true,
		"device-settings:sim921:reset":        true,
	}
	return BlockTable{
		Ramping:    manual,
		Soaking:    manual,
		HSClosing:  manual,
		HSOpening:  manual,
		Cooling:    manual,
		Regulating: manual,
	}
}

// Machine is the cooldown state machine (spec §4.2). It is safe for
// concurrent use: Start, Abort, Quench, and the internal tick all acquire
// a single mutex for the duration of trigger evaluation and state-entry
// side effects (spec §5's "re-entrant lock"), achieved here by having
// every public entry point take the lock once and funnel into unlocked
// helpers rather than calling back into the public API.
type Machine struct {
	mu sync.Mutex

	state        State
	enteredAt    time.Time
	currentA     float64
	scheduled    *time.Timer
	scheduledFor time.Time

	cap    Capabilities
	cfg    Config
	logger *log.Logger
}

// New constructs a Machine in the given initial state, without running
// entry actions (the caller is expected to have already reconciled
// on-disk/hardware state via InitialState and to call Bootstrap once to
// run off's entry action if appropriate).
func New(initial State, cap Capabilities, cfg Config, logger *log.Logger) *Machine {
	return &Machine{state: initial, cap: cap, cfg: cfg, logger: logger, enteredAt: cap.Now()}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the state plus a scheduled-cooldown annotation
// (supplemented feature, spec §13/sim960Agent.py's status property).
func (m *Machine) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduled != nil {
		return fmt.Sprintf("%s (scheduled cold at %s)", m.state, m.scheduledFor.Format(time.RFC3339))
	}
	return string(m.state)
}

// Bootstrap runs off's entry action if the machine starts in off. Call
// once after New when the reconciled initial state is Off, so the
// setpoint-zero guarantee holds even on a cold process start.
func (m *Machine) Bootstrap() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter(m.state)
}

// Start is valid from Off or Deramping (spec §4.2): prepares by issuing
// heat-switch close, enters HSClosing.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Off && m.state != Deramping {
		return fmt.Errorf("%w: start invalid from %s", ErrStateBlocked, m.state)
	}
	if err := m.cap.CommandHeatswitchClose(); err != nil {
		return fmt.Errorf("magnet: start: %w", err)
	}
	return m.enter(HSClosing)
}

// Abort is valid from every state (spec §4.2): enters Deramping.
func (m *Machine) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter(Deramping)
}

// Quench is valid from every state (spec §4.2): enters Off, which on
// entry kills current.
func (m *Machine) Quench() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter(Off)
}

// Tick evaluates the current state's guard and transitions or no-ops
// (spec §4.2 "next" trigger). Guards are total: any underlying I/O or
// store error is treated as false, so the machine stays put and retries
// on the next tick (spec §4.2 "Concurrency inside the machine").
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Off:
		// no-op
	case HSClosing:
		m.tickHSClosing()
	case Ramping:
		m.tickRamping()
	case Soaking:
		m.tickSoaking()
	case HSOpening:
		m.tickHSOpening()
	case Cooling:
		m.tickCooling()
	case Regulating:
		m.tickRegulating()
	case Deramping:
		m.tickDeramping()
	}
}

func (m *Machine) tickHSClosing() {
	open, err := m.cap.ReadHeatswitch()
	if err != nil {
		return
	}
	if !open {
		m.mustEnter(Ramping)
	}
}

func (m *Machine) tickRamping() {
	current, err := m.cap.ReadCurrent()
	if err != nil {
		return
	}
	if current >= m.cfg.SoakCurrentA {
		m.mustEnter(Soaking)
		return
	}
	m.incrementCurrent(current)
}

func (m *Machine) tickSoaking() {
	current, err := m.cap.ReadCurrent()
	if err != nil {
		return
	}
	if current != m.cfg.SoakCurrentA {
		m.mustEnter(Deramping)
		return
	}
	if m.cap.Now().Sub(m.enteredAt) >= m.cfg.SoakTime {
		if err := m.cap.CommandHeatswitchOpen(); err != nil {
			return
		}
		m.mustEnter(HSOpening)
	}
}

func (m *Machine) tickHSOpening() {
	open, err := m.cap.ReadHeatswitch()
	if err != nil {
		return
	}
	if open {
		m.mustEnter(Cooling)
	}
}

func (m *Machine) tickCooling() {
	open, err := m.cap.ReadHeatswitch()
	if err != nil {
		return
	}
	if !open {
		m.mustEnter(Deramping)
		return
	}
	temp, err := m.cap.ReadDeviceTemp()
	if err != nil {
		return
	}
	if temp <= m.cfg.MaxRegulateTempK {
		if err := m.cap.CommandMode(true); err != nil {
			return
		}
		m.mustEnter(Regulating)
		return
	}
	m.decrementCurrent()
}

func (m *Machine) tickRegulating() {
	temp, err := m.cap.ReadDeviceTemp()
	if err != nil {
		return
	}
	closedLoop, err := m.cap.ReadPIDClosedLoop()
	if err != nil {
		return
	}
	if temp > m.cfg.MaxRegulateTempK || !closedLoop {
		m.mustEnter(Deramping)
	}
}

func (m *Machine) tickDeramping() {
	current, err := m.cap.ReadCurrent()
	if err != nil {
		return
	}
	if current <= m.cfg.ZeroCurrentEps {
		m.mustEnter(Off)
		return
	}
	m.decrementCurrent()
}

// incrementCurrent raises the setpoint by ramp-rate*tick, with the step
// clamped to MaxCurrentSlopeA (§8 invariant 5). Only the step is clamped:
// the configured ramp rate itself is left unchanged and is not written
// back anywhere.
func (m *Machine) incrementCurrent(current float64) {
	rate := m.cfg.RampRateAPerS
	if rate <= 0 {
		m.logf("ramp rate %.6f A/s will take eternity", rate)
	}
	step := util.Clamp(rate*m.cfg.TickInterval.Seconds(), 0, m.cfg.MaxCurrentSlopeA)
	next := util.Clamp(current+step, 0, m.cfg.SoakCurrentA)
	if err := m.cap.CommandSetpoint(next); err != nil {
		m.logf("increment current: %v", err)
	}
}

// decrementCurrent lowers the setpoint by deramp-rate*tick (deramp rate
// is negative), floored at zero.
func (m *Machine) decrementCurrent() {
	current, err := m.cap.ReadCurrent()
	if err != nil {
		return
	}
	step := m.cfg.DerampRateAPerS * m.cfg.TickInterval.Seconds() // negative
	next := util.Clamp(current+step, 0, m.cfg.SoakCurrentA)
	if err := m.cap.CommandSetpoint(next); err != nil {
		m.logf("decrement current: %v", err)
	}
}

// mustEnter transitions within an already-held lock, logging but not
// propagating entry-action errors beyond the log (guards must be total;
// a failed entry action is retried implicitly on the next tick since the
// machine remains responsive).
func (m *Machine) mustEnter(s State) {
	if err := m.enter(s); err != nil {
		m.logf("enter %s: %v", s, err)
	}
}

// enter runs state-entry actions (spec §4.2 "State-entry actions"). Off's
// entry requires a successful setpoint=0 acknowledgement before the state
// is committed or announced (spec §8 invariant 1: "entering off is
// preceded by a setpoint=0 command acknowledgement, modulo a single
// failed attempt at which point the machine logs and stays in
// deramping") — a failed zero-setpoint command must never be followed by
// the machine publishing or persisting itself as Off with current still
// flowing, so the commit is deferred until after the command succeeds.
func (m *Machine) enter(s State) error {
	if s == Off {
		if err := m.cap.CommandSetpoint(0); err != nil {
			m.logf("off entry: setpoint zero failed, staying in deramping: %v", err)
			m.commit(Deramping)
			return fmt.Errorf("magnet: off entry: setpoint zero failed: %w", err)
		}
	}
	m.commit(s)
	return nil
}

// commit records the state transition and its side effects: entry time,
// published state, and persisted state (spec §4.2 "State-entry actions").
func (m *Machine) commit(s State) {
	now := m.cap.Now()
	m.logf("entering %s (from %s)", s, m.state)
	m.state = s
	m.enteredAt = now

	if err := m.cap.PublishState(s); err != nil {
		m.logf("publish state %s: %v", s, err)
	}
	if err := m.cap.PersistState(s, now); err != nil {
		m.logf("persist state %s: %v", s, err)
	}
}

func (m *Machine) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
