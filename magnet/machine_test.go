package magnet_test

import (
	"errors"
	"testing"
	"time"

	"github.com/nasa-jpl/adrctl/magnet"
)

// fakeCaps is an in-memory Capabilities implementation for tests, the
// "in-memory fakes" spec §9 calls for replacing the IO helpers with.
type fakeCaps struct {
	now        time.Time
	setpoint   float64
	current    float64
	hsOpen     bool
	deviceTemp float64
	closedLoop bool

	persistedState   magnet.State
	publishedState   magnet.State
	events           []string
	setpointCommands int

	// failZeroSetpoint, when set, makes CommandSetpoint(0) fail once and
	// then clears itself, simulating a single failed attempt at the
	// off-entry setpoint-zero command.
	failZeroSetpoint bool
}

func (f *fakeCaps) CommandSetpoint(amps float64) error {
	if amps == 0 && f.failZeroSetpoint {
		f.failZeroSetpoint = false
		return errors.New("setpoint write refused")
	}
	f.setpoint = amps
	f.current = amps // treat the device as ideal/instantaneous in tests
	f.setpointCommands++
	return nil
}
func (f *fakeCaps) CommandMode(closedLoop bool) error { f.closedLoop = closedLoop; return nil }
func (f *fakeCaps) CommandHeatswitchOpen() error      { f.hsOpen = true; return nil }
func (f *fakeCaps) CommandHeatswitchClose() error     { f.hsOpen = false; return nil }
func (f *fakeCaps) ReadHeatswitch() (bool, error)     { return f.hsOpen, nil }
func (f *fakeCaps) ReadDeviceTemp() (float64, error)  { return f.deviceTemp, nil }
func (f *fakeCaps) ReadCurrent() (float64, error)     { return f.current, nil }
func (f *fakeCaps) ReadPIDClosedLoop() (bool, error)  { return f.closedLoop, nil }
func (f *fakeCaps) PersistState(s magnet.State, at time.Time) error {
	f.persistedState = s
	return nil
}
func (f *fakeCaps) PublishState(s magnet.State) error { f.publishedState = s; return nil }
func (f *fakeCaps) PublishEvent(topic, payload string) error {
	f.events = append(f.events, topic+":"+payload)
	return nil
}
func (f *fakeCaps) Now() time.Time { return f.now }

func testConfig() magnet.Config {
	return magnet.Config{
		SoakCurrentA:     9.25,
		RampRateAPerS:    0.5,
		DerampRateAPerS:  -0.5,
		SoakTime:         2 * time.Second,
		MaxRegulateTempK: 0.5,
		MaxCurrentSlopeA: 0.5,
		TickInterval:     time.Second,
		ZeroCurrentEps:   0.001,
	}
}

func TestNominalCooldown(t *testing.T) {
	f := &fakeCaps{now: time.Unix(0, 0), hsOpen: true, deviceTemp: 0.3}
	cfg := testConfig()
	m := magnet.New(magnet.Off, f, cfg, nil)
	if err := m.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.State() != magnet.HSClosing {
		t.Fatalf("expected hs_closing, got %s", m.State())
	}

	m.Tick() // HS now closed (fake applies commands instantly) -> ramping
	if m.State() != magnet.Ramping {
		t.Fatalf("expected ramping, got %s", m.State())
	}

	for i := 0; i < 50 && m.State() == magnet.Ramping; i++ {
		f.now = f.now.Add(time.Second)
		m.Tick()
	}
	if m.State() != magnet.Soaking {
		t.Fatalf("expected soaking after ramp, got %s", m.State())
	}

	f.now = f.now.Add(3 * time.Second)
	m.Tick()
	if m.State() != magnet.HSOpening {
		t.Fatalf("expected hs_opening after soak, got %s", m.State())
	}

	m.Tick() // HS now open -> cooling
	if m.State() != magnet.Cooling {
		t.Fatalf("expected cooling, got %s", m.State())
	}

	f.deviceTemp = 0.3 // already below max-regulate-temp
	m.Tick()
	if m.State() != magnet.Regulating {
		t.Fatalf("expected regulating, got %s", m.State())
	}
	if !f.closedLoop {
		t.Fatal("expected PID closed loop engaged on entering regulating")
	}
}

func TestAbortMidRamp(t *testing.T) {
	f := &fakeCaps{now: time.Unix(0, 0), hsOpen: false, current: 4.0}
	cfg := testConfig()
	m := magnet.New(magnet.Ramping, f, cfg, nil)

	if err := m.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if m.State() != magnet.Deramping {
		t.Fatalf("expected deramping, got %s", m.State())
	}

	for i := 0; i < 20 && m.State() != magnet.Off; i++ {
		f.now = f.now.Add(time.Second)
		m.Tick()
	}
	if m.State() != magnet.Off {
		t.Fatalf("expected off after deramp, got %s", m.State())
	}
	if f.setpoint != 0 {
		t.Fatalf("expected zero setpoint at off, got %v", f.setpoint)
	}
}

func TestBlockedSettingInRegulating(t *testing.T) {
	bt := magnet.DefaultBlockTable()
	if !bt.Blocked(magnet.Regulating, "device-settings:sim960:vin-setpoint") {
		t.Fatal("expected vin-setpoint to be blocked while regulating")
	}
	if bt.Blocked(magnet.Off, "device-settings:sim960:vin-setpoint") {
		t.Fatal("did not expect vin-setpoint to be blocked while off")
	}
}

func TestQuenchFromAnyState(t *testing.T) {
	f := &fakeCaps{now: time.Unix(0, 0), current: 9.25}
	cfg := testConfig()
	m := magnet.New(magnet.Soaking, f, cfg, nil)

	if err := m.Quench(); err != nil {
		t.Fatalf("quench: %v", err)
	}
	if m.State() != magnet.Off {
		t.Fatalf("expected off after quench, got %s", m.State())
	}
	if f.setpoint != 0 {
		t.Fatal("expected setpoint commanded to zero on quench")
	}
}

func TestQuenchSurvivesFailedSetpointZero(t *testing.T) {
	f := &fakeCaps{now: time.Unix(0, 0), current: 9.25, failZeroSetpoint: true}
	cfg := testConfig()
	m := magnet.New(magnet.Soaking, f, cfg, nil)

	if err := m.Quench(); err == nil {
		t.Fatal("expected quench to report the failed setpoint-zero command")
	}
	if m.State() != magnet.Deramping {
		t.Fatalf("expected machine to stay in deramping after a failed off entry, got %s", m.State())
	}
	if f.publishedState == magnet.Off || f.persistedState == magnet.Off {
		t.Fatal("expected off to never be published or persisted when setpoint-zero failed")
	}

	// the current is still nonzero; off should commit cleanly now that
	// the next attempt succeeds.
	if err := m.Quench(); err != nil {
		t.Fatalf("second quench: %v", err)
	}
	if m.State() != magnet.Off {
		t.Fatalf("expected off after a successful retry, got %s", m.State())
	}
	if f.setpoint != 0 {
		t.Fatalf("expected zero setpoint at off, got %v", f.setpoint)
	}
}

func TestScheduleCooldownIdempotence(t *testing.T) {
	f := &fakeCaps{now: time.Unix(0, 0)}
	cfg := testConfig()
	m := magnet.New(magnet.Off, f, cfg, nil)

	target := f.now.Add(time.Hour)
	if err := m.ScheduleCooldown(target); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	m.CancelScheduledCooldown()
	if m.State() != magnet.Off {
		t.Fatalf("expected machine to remain off, got %s", m.State())
	}
}

func TestDerampFromZeroTerminatesImmediately(t *testing.T) {
	f := &fakeCaps{now: time.Unix(0, 0), current: 0}
	cfg := testConfig()
	m := magnet.New(magnet.Deramping, f, cfg, nil)
	m.Tick()
	if m.State() != magnet.Off {
		t.Fatalf("expected off within one tick, got %s", m.State())
	}
}
