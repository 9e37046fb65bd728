package magnet

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WritePersistedState writes the persisted-state file (spec §6): a single
// UTF-8 line "<unix_epoch_seconds>: <state_name>", rewritten on every
// state entry.
func WritePersistedState(path string, s State, at time.Time) error {
	line := fmt.Sprintf("%d: %s", at.Unix(), s)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("magnet: write persisted state: %w", err)
	}
	return nil
}

// ReadPersistedState parses the persisted-state file. Per spec §6,
// "absent or malformed => initial state defaults to deramping": a read or
// parse failure is reported via a non-nil error rather than defaulting
// here, so the caller's InitialState reconciliation can apply the
// deramping fallback uniformly alongside its own fallback conditions.
func ReadPersistedState(path string) (State, time.Time, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("magnet: read persisted state: %w", err)
	}
	line := strings.TrimSpace(string(b))
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", time.Time{}, fmt.Errorf("magnet: malformed persisted state line %q", line)
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("magnet: malformed persisted state timestamp %q", parts[0])
	}
	return State(strings.TrimSpace(parts[1])), time.Unix(epoch, 0), nil
}
