package instrument

import (
	"errors"
	"fmt"
)

// ErrNotPresent is returned by Connect when a mainframe walk exhausts all
// slots without finding the expected model (spec §4.1).
var ErrNotPresent = errors.New("instrument: model not present in any mainframe slot")

// ErrIdentityMismatch is returned when the connected instrument's
// manufacturer/model does not match what was expected; fatal at startup
// per spec §4.1/§7 (InstrumentIdentityMismatch).
var ErrIdentityMismatch = errors.New("instrument: identity mismatch")

// Descriptor names an instrument's expected identity and, for instruments
// that live behind a mainframe, the exit token issued before disconnecting
// a selected slot.
type Descriptor struct {
	Manufacturer string
	Model        string

	// MainframeExit is the string passed to the "CONN <n>, "<exit>""
	// command to return control of the mainframe's console port. Empty
	// for instruments that are never found behind a mainframe.
	MainframeExit string
}

// maxSlots is the mainframe slot count walked during discovery (spec
// §4.1: "iterates slots 1..8").
const maxSlots = 8

// Connect performs the identity handshake (spec §4.1): open the channel,
// issue *IDN?, and if the response names the housing mainframe rather
// than the addressed instrument, walk slots 1..8 issuing
// CONN <slot>, "<exit-token>" and re-querying until the expected model is
// found. Returns the verified identity, or ErrIdentityMismatch /
// ErrNotPresent.
func Connect(ch *Channel, want Descriptor, mainframeModel string) (Identity, error) {
	if err := ch.Open(); err != nil {
		return Identity{}, fmt.Errorf("instrument: connect: %w", err)
	}

	id, err := ch.Identify()
	if err != nil {
		return Identity{}, fmt.Errorf("instrument: identify: %w", err)
	}

	if id.Model == want.Model {
		if id.Manufacturer != want.Manufacturer {
			return Identity{}, fmt.Errorf("%w: got manufacturer %q, want %q", ErrIdentityMismatch, id.Manufacturer, want.Manufacturer)
		}
		return id, nil
	}

	if id.Model != mainframeModel || want.MainframeExit == "" {
		return Identity{}, fmt.Errorf("%w: got %q, want %q", ErrIdentityMismatch, id.Model, want.Model)
	}

	for slot := 1; slot <= maxSlots; slot++ {
		if err := ch.Send(fmt.Sprintf("CONN %d, %q", slot, want.MainframeExit)); err != nil {
			return Identity{}, fmt.Errorf("instrument: select slot %d: %w", slot, err)
		}
		id, err := ch.Identify()
		if err != nil {
			// a timeout or malformed response on an empty slot is
			// expected; keep walking.
			continue
		}
		if id.Model == want.Model && id.Manufacturer == want.Manufacturer {
			return id, nil
		}
	}
	return Identity{}, ErrNotPresent
}

// Disconnect sends the mainframe exit token (if any was recorded for this
// instrument) before closing the channel, so the mainframe's console port
// reverts to its own identity for the next agent's discovery walk.
func Disconnect(ch *Channel, exitToken string) error {
	if exitToken != "" {
		// best effort: a failed exit send shouldn't block shutdown.
		_ = ch.Send(exitToken)
	}
	return ch.Close()
}
