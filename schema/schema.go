/*Package schema describes the process-wide, read-only table of instrument
settings: the on-wire command prefix for each canonical setting name, and
the value specification (an enumerated mapping or a closed numeric
interval) that determines whether a value is legal.

The table itself is data, not design: it is loaded from a YAML file at
process start and never mutated afterward. Only the validation and
command-construction logic built on top of it belongs to this package.
*/
package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

var (
	// ErrInvalidSetting is returned when a setting name has no schema entry.
	ErrInvalidSetting = errors.New("schema: setting not present in schema")

	// ErrInvalidValue is returned when a value does not satisfy a setting's
	// value specification.
	ErrInvalidValue = errors.New("schema: value not valid for setting")
)

// ValueSpec is either an enumerated mapping from human value to wire token,
// or a closed numeric interval [Lo, Hi]. Exactly one of Enum or Range is
// populated; IsRange reports which.
type ValueSpec struct {
	// Enum maps a human-facing value to the literal token placed on the wire.
	Enum map[string]string `yaml:"enum,omitempty"`

	// Range is a closed numeric interval; nil when the spec is enumerated.
	Range *Range `yaml:"range,omitempty"`
}

// Range is a closed numeric interval [Lo, Hi].
type Range struct {
	Lo float64 `yaml:"lo"`
	Hi float64 `yaml:"hi"`
}

// IsRange reports whether the spec is a numeric interval rather than an
// enumerated mapping.
func (v ValueSpec) IsRange() bool {
	return v.Range != nil
}

// Valid reports whether value satisfies the spec. For an enumerated spec,
// value must be a key of Enum; for a range, value must parse as a float64
// lying in [Lo, Hi].
func (v ValueSpec) Valid(value string) bool {
	if v.IsRange() {
		f, err := parseFloat(value)
		if err != nil {
			return false
		}
		return f >= v.Range.Lo && f <= v.Range.Hi
	}
	_, ok := v.Enum[value]
	return ok
}

// WireToken returns the on-wire token for value, assuming Valid(value).
// For a range spec the token is the canonicalized float string; for an
// enum spec it is the mapped token.
func (v ValueSpec) WireToken(value string) (string, error) {
	if v.IsRange() {
		f, err := parseFloat(value)
		if err != nil {
			return "", err
		}
		if f < v.Range.Lo || f > v.Range.Hi {
			return "", ErrInvalidValue
		}
		return formatFloat(f), nil
	}
	tok, ok := v.Enum[value]
	if !ok {
		return "", ErrInvalidValue
	}
	return tok, nil
}

// SettingDef is one row of the schema table.
type SettingDef struct {
	// Key is the canonical dotted-colon setting name, e.g.
	// "device-settings:sim960:pid-p:value".
	Key string `yaml:"key"`

	// Device is the instrument this setting belongs to, e.g. "sim960".
	// Used to partition the schema per agent (instrument.Agent only
	// pulls and listens on the settings that name it).
	Device string `yaml:"device"`

	// Command is the on-wire command prefix, e.g. "GAIN".
	Command string `yaml:"command"`

	Value ValueSpec `yaml:"value"`
}

// Schema is a read-only, process-wide table of setting definitions.
type Schema struct {
	defs  map[string]SettingDef
	order []string // declaration order, for bulk-initialization ordering (spec §5)
}

// Load reads a YAML schema file. The YAML shape is a top-level list of
// SettingDef; declaration order in the file is preserved as Order().
func Load(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	var rows []SettingDef
	if err := yaml.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	return New(rows), nil
}

// New builds a Schema from an in-memory list of definitions, in the given
// order. Exported so tests and defaults-as-code callers can bypass the
// YAML file.
func New(rows []SettingDef) *Schema {
	s := &Schema{defs: make(map[string]SettingDef, len(rows)), order: make([]string, 0, len(rows))}
	for _, r := range rows {
		s.defs[r.Key] = r
		s.order = append(s.order, r.Key)
	}
	return s
}

// Lookup returns the definition for key, or ErrInvalidSetting.
func (s *Schema) Lookup(key string) (SettingDef, error) {
	d, ok := s.defs[key]
	if !ok {
		return SettingDef{}, fmt.Errorf("%w: %s", ErrInvalidSetting, key)
	}
	return d, nil
}

// Order returns setting keys in declaration order, the order bulk
// initialization applies them in (spec §5, "Ordering guarantees").
func (s *Schema) Order() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ForDevice returns the setting keys belonging to device, in declaration
// order.
func (s *Schema) ForDevice(device string) []string {
	var out []string
	for _, k := range s.order {
		if s.defs[k].Device == device {
			out = append(out, k)
		}
	}
	return out
}

// Devices returns the distinct device names present in the schema, sorted.
func (s *Schema) Devices() []string {
	seen := map[string]bool{}
	for _, d := range s.defs {
		seen[d.Device] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
