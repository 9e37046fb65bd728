package instrument

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store"
)

const commandPrefix = "command:"

// BlockCheck reports whether setting is refused in the caller's current
// state, and if so, why (spec §4.3). A nil BlockCheck never blocks.
type BlockCheck func(setting string) (blocked bool, reason string)

// Sender sends a command's wire string to the instrument. Agents supply
// this as a thin wrapper around a Channel.
type Sender func(wire string) error

// Composite lets a setting's acceptance trigger additional derived
// commands (spec §4.1 "composite commands", e.g. regulation temperature
// also sending a resistance setpoint derived from a calibration curve).
// It is called after the primitive command validates but before it is
// sent, and returns extra wire strings to send in the same handler
// invocation, in order, after the primitive command.
type Composite func(setting, value string) ([]string, error)

// Listener subscribes to the command-channel forms of every setting a
// device owns, plus any agent-specific command topics, and applies spec
// §4.1's five-step handler to each.
type Listener struct {
	st       store.Store
	sch      *schema.Schema
	device   string
	send     Sender
	blocked  BlockCheck
	extra    map[string]Composite // keyed by setting
	logger   *log.Logger
	statusKy string // status:device:<dev>:status

	readBackFn func(setting string)
}

// NewListener constructs a Listener for device, sending accepted commands
// through send and consulting blocked (may be nil) before sending.
func NewListener(st store.Store, sch *schema.Schema, device string, send Sender, blocked BlockCheck, logger *log.Logger) *Listener {
	return &Listener{
		st:       st,
		sch:      sch,
		device:   device,
		send:     send,
		blocked:  blocked,
		extra:    make(map[string]Composite),
		logger:   logger,
		statusKy: fmt.Sprintf("status:device:%s:status", device),
	}
}

// OnSetting registers a Composite for a specific setting key.
func (l *Listener) OnSetting(setting string, c Composite) {
	l.extra[setting] = c
}

// Topics returns the command-channel names this listener should subscribe
// to: the command: form of every setting belonging to this device, plus
// any extra agent-specific topics passed in.
func (l *Listener) Topics(extraTopics ...string) []string {
	settings := l.sch.ForDevice(l.device)
	out := make([]string, 0, len(settings)+len(extraTopics))
	for _, s := range settings {
		out = append(out, commandPrefix+s)
	}
	out = append(out, extraTopics...)
	return out
}

// Run blocks, applying spec §4.1's five-step command handler to every
// message received on topics, until ctx is cancelled.
func (l *Listener) Run(ctx context.Context, topics []string) {
	msgs := l.st.Listen(ctx, topics...)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			l.handle(msg)
		}
	}
}

func (l *Listener) handle(msg store.Message) {
	setting := strings.TrimPrefix(msg.Channel, commandPrefix)

	cmd, err := schema.NewCommand(l.sch, setting, msg.Value)
	if err != nil {
		l.logf("rejecting %s=%s: %v", setting, msg.Value, err)
		return
	}

	if l.blocked != nil {
		if blocked, reason := l.blocked(setting); blocked {
			l.logf("blocked %s=%s: %s", setting, msg.Value, reason)
			l.readBack(setting)
			_ = l.st.Set(l.statusKy, fmt.Sprintf("blocked: %s", reason))
			return
		}
	}

	var extraWires []string
	if comp, ok := l.extra[setting]; ok {
		extraWires, err = comp(setting, msg.Value)
		if err != nil {
			l.logf("composite command for %s failed: %v", setting, err)
			return
		}
	}

	if err := l.send(cmd.WireString()); err != nil {
		l.logf("transport error sending %s: %v", setting, err)
		_ = l.st.Set(l.statusKy, fmt.Sprintf("error: %v", err))
		return
	}
	for _, w := range extraWires {
		if err := l.send(w); err != nil {
			l.logf("transport error sending composite command for %s: %v", setting, err)
			_ = l.st.Set(l.statusKy, fmt.Sprintf("error: %v", err))
			return
		}
	}

	if err := l.st.Set(setting, msg.Value); err != nil {
		l.logf("store write-back for %s failed: %v", setting, err)
	}
	_ = l.st.Set(l.statusKy, "OK")
}

// readBack is a hook agents can wire to force a settings re-read so the
// store tracks the unchanged hardware value after a block (spec §4.3).
// The default does nothing; agents override via SetReadBack.
func (l *Listener) readBack(setting string) {
	if l.readBackFn != nil {
		l.readBackFn(setting)
	}
}

// SetReadBack installs the hook readBack calls after a blocked command.
func (l *Listener) SetReadBack(fn func(setting string)) {
	l.readBackFn = fn
}

func (l *Listener) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}
