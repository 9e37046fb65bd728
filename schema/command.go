package schema

import "fmt"

// Command is a validated (setting, value) pair ready to be sent on the
// wire. Construct with NewCommand; the zero value is not usable.
type Command struct {
	Setting string
	Value   string

	wire string
}

// NewCommand looks setting up in s, validates value against its ValueSpec,
// and derives the wire string. It fails with ErrInvalidSetting if setting
// is unknown, or ErrInvalidValue if value does not satisfy the spec.
func NewCommand(s *Schema, setting, value string) (Command, error) {
	def, err := s.Lookup(setting)
	if err != nil {
		return Command{}, err
	}
	tok, err := def.Value.WireToken(value)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s=%s", ErrInvalidValue, setting, value)
	}
	return Command{
		Setting: setting,
		Value:   value,
		wire:    fmt.Sprintf("%s %s", def.Command, tok),
	}, nil
}

// Valid reports whether the command was constructed successfully. A
// Command obtained from NewCommand with a nil error is always valid; this
// exists for callers that pass Commands around after construction.
func (c Command) Valid() bool {
	return c.wire != ""
}

// WireString is the on-wire command text, e.g. "GAIN 10".
func (c Command) WireString() string {
	return c.wire
}
