/*Package current implements the current/heat-switch agent of spec §2
item 4: reads magnet current via ADC, drives a two-position heat-switch
actuator, publishes current and heat-switch position, accepts open/close
commands, and runs the quench detector.

Grounded on currentduinoAgent.py in the picturec stack this module's
domain is drawn from: the ADC-to-amps conversion is the voltage-divider
formula current = reading*(5.0/1023.0)*((R1+R2)/R2), and
open/close_heat_switch are idempotent at the hardware layer (spec §8),
checking the last-known position before issuing a redundant command. The
MCU link is framed with a CRC16/XMODEM trailer the way nkt.telegram.go
frames its own serial protocol in the teacher repo — a hobbyist
microcontroller UART is exactly the noisy link a frame-integrity check is
for, unlike the SIM-series instruments' already-robust ASCII protocol.
*/
package current

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/snksoft/crc"

	"github.com/nasa-jpl/adrctl/instrument"
	"github.com/nasa-jpl/adrctl/magnet"
	"github.com/nasa-jpl/adrctl/quench"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store"
)

const (
	device = "currentduino"

	keyCurrent    = "status:current:current"
	keyHeatswitch = "status:currentduino:heatswitch" // "open" | "closed"

	// HeatswitchSetting is the fixed command topic spec §6 names:
	// "command:device-settings:currentduino:heatswitch" (payload:
	// open|close).
	HeatswitchSetting = "device-settings:currentduino:heatswitch"

	// voltage-divider constants from currentduinoAgent.py
	r1         = 11790.0
	r2         = 11690.0
	adcFullScl = 1023.0
	adcVref    = 5.0
)

var crcTable = crc.NewTable(crc.XMODEM)

// adcToAmps converts a raw ADC reading to magnet current in amps via the
// voltage-divider formula in currentduinoAgent.py's parse().
func adcToAmps(reading float64) float64 {
	return reading * (adcVref / adcFullScl) * ((r1 + r2) / r2)
}

// checkFrame validates a CRC16/XMODEM trailer on an MCU response of the
// form "<payload>,<crc16>". It returns the validated payload.
func checkFrame(raw string) (string, error) {
	idx := lastComma(raw)
	if idx < 0 {
		return "", fmt.Errorf("current: missing CRC trailer in %q", raw)
	}
	payload, trailer := raw[:idx], raw[idx+1:]
	var want uint16
	if _, err := fmt.Sscanf(trailer, "%x", &want); err != nil {
		return "", fmt.Errorf("current: malformed CRC trailer %q: %w", trailer, err)
	}
	got := crcTable.CRC16(crcTable.UpdateCrc(crcTable.InitCrc(), []byte(payload)))
	if got != want {
		return "", fmt.Errorf("current: CRC mismatch on %q: got %04x want %04x", raw, got, want)
	}
	return payload, nil
}

func lastComma(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ',' {
			return i
		}
	}
	return -1
}

// Agent runs the current/heat-switch instrument agent.
type Agent struct {
	inst     *instrument.Agent
	ch       *instrument.Channel
	st       store.Store
	sch      *schema.Schema
	listener *instrument.Listener
	blocks   magnet.BlockTable
	stateFn  func() magnet.State
	detector quench.Detector
	logger   *log.Logger

	hsOpen bool // last known heat-switch position, for idempotence
}

// New constructs a current/heat-switch Agent.
func New(ch *instrument.Channel, st store.Store, sch *schema.Schema, blocks magnet.BlockTable, stateFn func() magnet.State, detector quench.Detector, logger *log.Logger) *Agent {
	descriptor := instrument.Descriptor{Manufacturer: "JPL", Model: "currentduino"}
	inst := instrument.NewAgent(ch, device, descriptor, "", st, sch, logger)

	a := &Agent{inst: inst, ch: ch, st: st, sch: sch, blocks: blocks, stateFn: stateFn, detector: detector, logger: logger}

	send := func(wire string) error { return a.ch.Send(wire) }
	blocked := func(setting string) (bool, string) {
		s := a.stateFn()
		if blocks.Blocked(s, setting) {
			return true, fmt.Sprintf("setting blocked in state %s", s)
		}
		return false, ""
	}
	a.listener = instrument.NewListener(st, sch, device, send, blocked, logger)

	return a
}

// Run connects and runs the command listener and monitor loop until ctx
// is cancelled.
func (a *Agent) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := a.inst.Connect(); err != nil {
		return fmt.Errorf("current: connect: %w", err)
	}
	defer a.inst.Disconnect()

	_ = a.st.CreateTS(keyCurrent)

	go a.listener.Run(ctx, a.listener.Topics())
	go a.runHeatswitchListener(ctx)

	reads := []instrument.Read{
		func() (float64, error) {
			raw, err := a.ch.Query("ADC?")
			if err != nil {
				return 0, err
			}
			payload, err := checkFrame(raw)
			if err != nil {
				return 0, err
			}
			var reading float64
			if _, err := fmt.Sscanf(payload, "%f", &reading); err != nil {
				return 0, fmt.Errorf("current: parse ADC payload %q: %w", payload, err)
			}
			return adcToAmps(reading), nil
		},
	}
	mon := instrument.NewMonitor(pollInterval, reads, a.onReadings, a.logger)

	// the heat-switch position monitor (spec §13 supplemented feature,
	// since currentduinoAgent.py never wired the touch sensors to a
	// position readback).
	go a.monitorHeatswitch(ctx, pollInterval)

	mon.Run(ctx)
	return nil
}

func (a *Agent) onReadings(readings []instrument.Reading) {
	if len(readings) == 0 || !readings[0].Valid {
		return
	}
	current := readings[0].Value
	if err := a.st.AddTS(keyCurrent, current); err != nil {
		a.logf("store %s: %v", keyCurrent, err)
	}
	if a.detector != nil {
		if a.detector.Add(time.Now().UnixMilli(), current) {
			_ = a.st.Publish("event:quenching", fmt.Sprintf("%d", time.Now().Unix()), false)
		}
	}
}

func (a *Agent) monitorHeatswitch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw, err := a.ch.Query("HS?")
			if err != nil {
				continue
			}
			open := raw == "1"
			a.hsOpen = open
			value := "closed"
			if open {
				value = "open"
			}
			_ = a.st.Set(keyHeatswitch, value)
		}
	}
}

// runHeatswitchListener handles command:device-settings:currentduino:heatswitch
// directly rather than through the generic schema-validated settings
// path: spec §6 fixes this topic's payload as the literal "open"|"close"
// token, not a schema-table value. Grounded on currentduinoAgent.py's
// open_heat_switch/close_heat_switch.
func (a *Agent) runHeatswitchListener(ctx context.Context) {
	topic := "command:" + HeatswitchSetting
	msgs := a.st.Listen(ctx, topic)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			a.handleHeatswitch(msg.Value)
		}
	}
}

// handleHeatswitch implements the idempotence law of spec §8:
// open_heatswitch(); open_heatswitch() issues at most one hardware
// command when position is already open.
func (a *Agent) handleHeatswitch(value string) {
	if value != "open" && value != "close" {
		a.logf("heatswitch: invalid command %q", value)
		return
	}
	wantOpen := value == "open"
	if wantOpen == a.hsOpen {
		return // already in the requested position; no-op
	}
	wire := "HS CLOSE"
	if wantOpen {
		wire = "HS OPEN"
	}
	if err := a.ch.Send(wire); err != nil {
		a.logf("heatswitch command: %v", err)
		return
	}
	a.hsOpen = wantOpen
	_ = a.st.Set(HeatswitchSetting, value)
}

func (a *Agent) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
