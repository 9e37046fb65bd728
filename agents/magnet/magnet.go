/*Package magnet (agent) wires magnet.Machine to the shared store: it
reads telemetry the bridge and current agents have published (no
bias-monitor keys are read),
issues commands on the shared command bus rather than owning any serial
port itself (spec §2 item 5: "emits current-setpoint commands to the PID
controller and heat-switch commands to (4)"), runs the tick loop, and
exposes the fixed command topics of spec §6 (get-cold, abort-cooldown,
be-cold-at, cancel-scheduled-cooldown).

Grounded on sim960Agent.py's MagnetController wiring in the picturec
stack: the Python version talks to hardware directly and to redis for
coordination; here, the IO surface is entirely the store, injected as a
magnet.Capabilities implementation (storeCaps) so the state machine never
imports an instrument package directly (spec §9).
*/
package magnet

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/nasa-jpl/adrctl/magnet"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store"
)

const (
	keyMagnetState = "status:magnet:state"

	settingSetpoint = "device-settings:sim960:vin-setpoint"
	settingPIDMode  = "device-settings:sim960:pid-mode"
	settingHS       = "device-settings:currentduino:heatswitch"

	keyCurrent     = "status:current:current"
	keyDeviceTemp  = "status:bridge:temperature"
	keyHeatswitch  = "status:currentduino:heatswitch"

	topicGetCold           = "command:get-cold"
	topicAbortCooldown     = "command:abort-cooldown"
	topicBeColdAt          = "command:be-cold-at"
	topicCancelScheduled   = "command:cancel-scheduled-cooldown"
	topicQuenching         = "event:quenching"
)

// storeCaps implements magnet.Capabilities entirely in terms of a
// store.Store: every IO operation the state machine needs is a read of
// telemetry another agent published, or a publish on the shared command
// bus for another agent to act on.
type storeCaps struct {
	st        store.Store
	statePath string
}

func (c *storeCaps) CommandSetpoint(amps float64) error {
	return c.st.Publish("command:"+settingSetpoint, strconv.FormatFloat(amps, 'g', -1, 64), true)
}

func (c *storeCaps) CommandMode(closedLoop bool) error {
	v := "manual"
	if closedLoop {
		v = "pid"
	}
	return c.st.Publish("command:"+settingPIDMode, v, true)
}

func (c *storeCaps) CommandHeatswitchOpen() error {
	return c.st.Publish("command:"+settingHS, "open", true)
}

func (c *storeCaps) CommandHeatswitchClose() error {
	return c.st.Publish("command:"+settingHS, "close", true)
}

func (c *storeCaps) ReadHeatswitch() (bool, error) {
	v, ok, err := c.st.Get(keyHeatswitch, true)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("magnet: %s not yet reported", keyHeatswitch)
	}
	return v == "open", nil
}

func (c *storeCaps) ReadDeviceTemp() (float64, error) {
	s, ok, err := c.st.GetTS(keyDeviceTemp)
	if err != nil || !ok {
		return 0, fmt.Errorf("magnet: %s unavailable: %w", keyDeviceTemp, err)
	}
	return s.Value, nil
}

func (c *storeCaps) ReadCurrent() (float64, error) {
	s, ok, err := c.st.GetTS(keyCurrent)
	if err != nil || !ok {
		return 0, fmt.Errorf("magnet: %s unavailable: %w", keyCurrent, err)
	}
	return s.Value, nil
}

func (c *storeCaps) ReadPIDClosedLoop() (bool, error) {
	v, ok, err := c.st.Get(settingPIDMode, false)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return v == "pid", nil
}

func (c *storeCaps) PersistState(s magnet.State, at time.Time) error {
	return magnet.WritePersistedState(c.statePath, s, at)
}

func (c *storeCaps) PublishState(s magnet.State) error {
	return c.st.Set(keyMagnetState, string(s))
}

func (c *storeCaps) PublishEvent(topic, payload string) error {
	return c.st.Publish(topic, payload, true)
}

func (c *storeCaps) Now() time.Time { return time.Now() }

// Agent runs the magnet-controller process.
type Agent struct {
	machine *magnet.Machine
	st      store.Store
	logger  *log.Logger
}

// New constructs the magnet-controller Agent, reconciling initial state
// from the persisted-state file and live telemetry (spec §4.2).
func New(st store.Store, sch *schema.Schema, statePath string, cfg magnet.Config, logger *log.Logger) *Agent {
	caps := &storeCaps{st: st, statePath: statePath}
	initial := magnet.InitialState(statePath, caps, cfg)
	m := magnet.New(initial, caps, cfg, logger)
	return &Agent{machine: m, st: st, logger: logger}
}

// Machine exposes the underlying state machine, e.g. for a status
// endpoint or tests.
func (a *Agent) Machine() *magnet.Machine { return a.machine }

// Run bootstraps the machine, starts the tick loop and the fixed-topic
// command listener, and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context, tickInterval time.Duration) error {
	if a.machine.State() == magnet.Off {
		if err := a.machine.Bootstrap(); err != nil {
			return fmt.Errorf("magnet: bootstrap: %w", err)
		}
	}

	go a.runCommandListener(ctx)
	go a.runQuenchListener(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.machine.Tick()
			_ = a.st.Set(keyMagnetState, string(a.machine.State()))
		}
	}
}

func (a *Agent) runCommandListener(ctx context.Context) {
	msgs := a.st.Listen(ctx, topicGetCold, topicAbortCooldown, topicBeColdAt, topicCancelScheduled)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			a.handleCommand(msg)
		}
	}
}

func (a *Agent) handleCommand(msg store.Message) {
	switch msg.Channel {
	case topicGetCold:
		if err := a.machine.Start(); err != nil {
			a.logf("get-cold: %v", err)
		}
	case topicAbortCooldown:
		if err := a.machine.Abort(); err != nil {
			a.logf("abort-cooldown: %v", err)
		}
	case topicBeColdAt:
		epoch, err := strconv.ParseInt(msg.Value, 10, 64)
		if err != nil {
			a.logf("be-cold-at: malformed payload %q: %v", msg.Value, err)
			return
		}
		if err := a.machine.ScheduleCooldown(time.Unix(epoch, 0)); err != nil {
			a.logf("be-cold-at: %v", err)
		}
	case topicCancelScheduled:
		a.machine.CancelScheduledCooldown()
	}
}

func (a *Agent) runQuenchListener(ctx context.Context) {
	msgs := a.st.Listen(ctx, topicQuenching)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			if err := a.machine.Quench(); err != nil {
				a.logf("quench: %v", err)
			}
		}
	}
}

func (a *Agent) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
