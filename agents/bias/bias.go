/*Package bias implements the HEMT bias-monitor agent of spec §2 item 2:
polls HEMT bias voltages and currents, writes timeseries. It is a leaf
agent — it consumes no commands and blocks no settings.

Grounded on hemttempAgent.py's polling-and-store loop in the picturec
stack this module's domain is drawn from, and on envsrv.Envmon's
ticker-driven poll pattern in the teacher repo.
*/
package bias

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nasa-jpl/adrctl/instrument"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store"
)

// Quantity names one polled HEMT bias channel and the timeseries key it
// feeds; the most recent observation is the latest sample of that
// timeseries (no plain scalar key is written).
type Quantity struct {
	Name       string // e.g. "drain-voltage"
	WireQuery  string // e.g. "VOLT? 1"
	Timeseries string // status:bias:<name>
}

// Agent runs the HEMT bias monitor loop.
type Agent struct {
	inst   *instrument.Agent
	ch     *instrument.Channel
	st     store.Store
	quants []Quantity
	logger *log.Logger
}

// New constructs a bias-monitor Agent. descriptor identifies the HEMT bias
// monitor instrument (spec §6 identity handshake); quants lists the
// channels to poll each tick.
func New(ch *instrument.Channel, descriptor instrument.Descriptor, mainframeModel string, st store.Store, sch *schema.Schema, quants []Quantity, logger *log.Logger) *Agent {
	inst := instrument.NewAgent(ch, "hemtbias", descriptor, mainframeModel, st, sch, logger)
	for _, q := range quants {
		_ = st.CreateTS(q.Timeseries)
	}
	return &Agent{inst: inst, ch: ch, st: st, quants: quants, logger: logger}
}

// Run connects, initializes, and polls until ctx is cancelled.
func (a *Agent) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := a.inst.Connect(); err != nil {
		return fmt.Errorf("bias: connect: %w", err)
	}
	defer a.inst.Disconnect()

	if err := a.inst.Initialize(); err != nil {
		a.logf("initialize: %v", err)
	}

	reads := make([]instrument.Read, len(a.quants))
	for i, q := range a.quants {
		q := q
		reads[i] = func() (float64, error) {
			return a.ch.QueryFloat(q.WireQuery)
		}
	}

	mon := instrument.NewMonitor(pollInterval, reads, a.onReadings, a.logger)
	mon.Run(ctx)
	return nil
}

func (a *Agent) onReadings(readings []instrument.Reading) {
	for i, r := range readings {
		if !r.Valid {
			continue
		}
		q := a.quants[i]
		if err := a.st.AddTS(q.Timeseries, r.Value); err != nil {
			a.logf("store %s: %v", q.Timeseries, err)
		}
	}
}

func (a *Agent) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
