package instrument

import (
	"fmt"
	"log"

	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store"
)

// ErrMissingSetting is returned by Initialize when a setting this device
// owns has no value in the store. Spec §4.1: "a missing setting is fatal
// (refuse to operate a partially configured instrument)".
var ErrMissingSetting = fmt.Errorf("instrument: required setting missing from store")

// Agent wires a Channel to a store and schema: identity handshake,
// bulk-initialization from stored settings, and identity bookkeeping.
// Monitor and Listener are driven separately by the owning process (see
// agents/*) since their lifetimes and read/send vectors are
// instrument-specific.
type Agent struct {
	Channel *Channel

	device         string
	descriptor     Descriptor
	mainframeModel string
	exitToken      string

	st  store.Store
	sch *schema.Schema

	logger *log.Logger

	// initialized tracks whether Initialize has run successfully since
	// the last Connect, so it runs at most once per connect (spec
	// §4.1).
	initialized bool
}

// NewAgent constructs an Agent for device, expecting descriptor's
// identity (walking mainframeModel's slots if descriptor.MainframeExit is
// set).
func NewAgent(ch *Channel, device string, descriptor Descriptor, mainframeModel string, st store.Store, sch *schema.Schema, logger *log.Logger) *Agent {
	return &Agent{
		Channel:        ch,
		device:         device,
		descriptor:     descriptor,
		mainframeModel: mainframeModel,
		exitToken:      descriptor.MainframeExit,
		st:             st,
		sch:            sch,
		logger:         logger,
	}
}

// Connect performs the identity handshake and records identity keys in
// the store (spec §4.1, §6). A mismatch is fatal: identity keys are left
// blank and ErrIdentityMismatch is returned so the caller can exit
// non-zero without writing any setting (spec §8 scenario 6).
func (a *Agent) Connect() error {
	id, err := Connect(a.Channel, a.descriptor, a.mainframeModel)
	if err != nil {
		_ = a.st.Set(a.key("status"), fmt.Sprintf("error: %v", err))
		return err
	}
	a.initialized = false
	_ = a.st.Set(a.key("model"), id.Model)
	_ = a.st.Set(a.key("firmware"), id.Firmware)
	_ = a.st.Set(a.key("sn"), id.SerialNumber)
	_ = a.st.Set(a.key("status"), "connected")
	return nil
}

// Disconnect sends the mainframe exit token (if any) and closes the
// channel.
func (a *Agent) Disconnect() error {
	return Disconnect(a.Channel, a.exitToken)
}

// Initialize runs the bulk-initialization callback (spec §4.1): pulls
// every setting belonging to this device from the store in schema
// declaration order, validates each, and sends it. Runs at most once per
// successful Connect; subsequent calls before a reconnect are no-ops.
// A missing setting is fatal; a transport error leaves Initialized()
// false so the next reconnect retries from scratch.
func (a *Agent) Initialize() error {
	if a.initialized {
		return nil
	}
	for _, setting := range a.sch.ForDevice(a.device) {
		value, ok, err := a.st.Get(setting, false)
		if err != nil {
			return fmt.Errorf("instrument: read %s: %w", setting, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSetting, setting)
		}
		cmd, err := schema.NewCommand(a.sch, setting, value)
		if err != nil {
			return fmt.Errorf("instrument: stored value for %s fails validation: %w", setting, err)
		}
		if err := a.Channel.Send(cmd.WireString()); err != nil {
			return fmt.Errorf("instrument: send %s: %w", setting, err)
		}
	}
	a.initialized = true
	return nil
}

// Initialized reports whether the bulk-initialization callback has run
// successfully since the last Connect.
func (a *Agent) Initialized() bool { return a.initialized }

func (a *Agent) key(quantity string) string {
	return fmt.Sprintf("status:device:%s:%s", a.device, quantity)
}
