/*Package instrument implements the instrument-agent runtime of spec §4.1:
a serial dialogue channel shared by every instrument agent (identity
handshake, mainframe walk), a polling monitor loop, a command-channel
listener, and the glue (Agent) that wires them to a store.Store and a
schema.Schema.

The wire framing is ASCII, uppercase, line-terminated (spec §6): queries
end with '?', mainframe slot selection is "CONN <n>, "<exit-token>"", and
identity is "*IDN?" returning four comma-separated fields. This is
grounded on scpi.SCPI's Write/WriteRead/ReadString shape in the teacher
repo, generalized to this protocol family (no SCPI error-query
handshaking: these instruments don't expose SYSTem:ERRor?).
*/
package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/adrctl/comm"
)

// ErrProtocol is returned when a response does not parse as expected
// (spec §7 ProtocolError: "malformed response to a well-formed query").
var ErrProtocol = errors.New("instrument: malformed response")

// Identity is the four-field *IDN? response (spec §6).
type Identity struct {
	Manufacturer string
	Model        string
	SerialNumber string
	Firmware     string
}

// ParseIdentity parses a raw "*IDN?" response of the form
// "manufacturer,model,sn,firmware".
func ParseIdentity(raw string) (Identity, error) {
	fields := strings.Split(raw, ",")
	if len(fields) != 4 {
		return Identity{}, fmt.Errorf("%w: *IDN? returned %d fields, want 4: %q", ErrProtocol, len(fields), raw)
	}
	return Identity{
		Manufacturer: strings.TrimSpace(fields[0]),
		Model:        strings.TrimSpace(fields[1]),
		SerialNumber: strings.TrimSpace(fields[2]),
		Firmware:     strings.TrimSpace(fields[3]),
	}, nil
}

// Channel is the exclusive serial dialogue owner for one instrument (spec
// §4.1, §5: "the serial port of each instrument is owned by exactly one
// agent process"). All send/receive pairs are serialized by the embedded
// comm.RemoteDevice's own mutex, so responses are never interleaved.
type Channel struct {
	dev     *comm.RemoteDevice
	limiter *rate.Limiter
}

// NewChannel wraps dev with a command rate limiter. ratePerSec bounds the
// number of commands per second sent on this channel; the Lakeshore 332's
// manual-documented limit ("< 20 commands per second", carried as a dead
// comment in the teacher's lakeshore package) is the model for this
// knob — here it is actually enforced rather than merely noted.
func NewChannel(dev *comm.RemoteDevice, ratePerSec float64) *Channel {
	return &Channel{dev: dev, limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1)}
}

// Send transmits msg with no response expected.
func (c *Channel) Send(msg string) error {
	c.limiter.Wait(noCancel{})
	return c.dev.Send([]byte(msg))
}

// Query sends msg and returns the line response with CR/LF stripped.
func (c *Channel) Query(msg string) (string, error) {
	c.limiter.Wait(noCancel{})
	resp, err := c.dev.SendRecv([]byte(msg))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(resp), "\r\n"), nil
}

// QueryFloat is Query parsed as a float64.
func (c *Channel) QueryFloat(msg string) (float64, error) {
	s, err := c.Query(msg)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a float: %v", ErrProtocol, s, err)
	}
	return f, nil
}

// Identify issues "*IDN?" and parses the response.
func (c *Channel) Identify() (Identity, error) {
	resp, err := c.Query("*IDN?")
	if err != nil {
		return Identity{}, err
	}
	return ParseIdentity(resp)
}

// Open opens the underlying connection (idempotent, backoff-guarded, per
// comm.RemoteDevice.Open).
func (c *Channel) Open() error { return c.dev.Open() }

// Close closes the underlying connection immediately.
func (c *Channel) Close() error { return c.dev.Close() }

// noCancel satisfies the context.Context methods rate.Limiter.Wait needs
// without pulling a cancellation signal through every call site; callers
// needing cancellable waits should use WaitN directly on the limiter via
// a real context in higher layers.
type noCancel struct{}

func (noCancel) Deadline() (time.Time, bool) { return time.Time{}, false }
func (noCancel) Done() <-chan struct{}       { return nil }
func (noCancel) Err() error                  { return nil }
func (noCancel) Value(any) any               { return nil }
