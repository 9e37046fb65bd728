/*Package config loads per-agent YAML configuration with koanf, the same
structs-defaults-then-file-overlay pattern cmd/multiserver/main.go uses in
the teacher repo: koanf.Load(structs.Provider(Config{}, "koanf"), nil)
seeds defaults, then koanf.Load(file.Provider(path), yaml.Parser())
overlays the file if present, tolerating a missing file.
*/
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// SerialConfig names a tty device and baud rate for an instrument
// channel (spec §4.1: "8N1, per-instrument baud, configurable
// per-operation timeout").
type SerialConfig struct {
	Port           string        `koanf:"port"`
	BaudRate       int           `koanf:"baud"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxCommandRate float64       `koanf:"max-command-rate"` // commands/sec
}

// StoreConfig configures the shared state & command bus client. Only a
// network address is modeled here; the default deployment uses the
// in-process memstore.Store and this is unused in-process.
type StoreConfig struct {
	Addr string `koanf:"addr"`
}

// RampConfig holds the deployment-tuned cooldown-cycle constants spec §9
// calls out as an Open Question resolved by treating them as
// configuration.
type RampConfig struct {
	SoakCurrentA     float64       `koanf:"soak-current-a"`
	RampRateAPerS    float64       `koanf:"ramp-rate-a-per-s"`
	DerampRateAPerS  float64       `koanf:"deramp-rate-a-per-s"`
	SoakTime         time.Duration `koanf:"soak-time"`
	MaxRegulateTempK float64       `koanf:"max-regulate-temp-k"`
	MaxCurrentSlopeA float64       `koanf:"max-current-slope-a"`
	TickInterval     time.Duration `koanf:"tick-interval"`
	ZeroCurrentEps   float64       `koanf:"zero-current-eps"`
}

// QuenchConfig selects and tunes the quench detector (spec §9 Open
// Question: "two variants exist; only one should be active in a
// deployment — surface as config").
type QuenchConfig struct {
	Algorithm string  `koanf:"algorithm"` // "slope" or "residual"
	Window    int     `koanf:"window"`
	SigmaN    float64 `koanf:"sigma-n"` // residual variant only
}

// SchemaConfig points at the setting-schema YAML table (spec §1: "the
// schema itself is data, not design").
type SchemaConfig struct {
	Path string `koanf:"path"`
}

// PersistConfig locates the magnet state machine's persisted-state file
// (spec §6).
type PersistConfig struct {
	StatePath string `koanf:"state-path"`
}

// BiasConfig configures the HEMT bias-monitor agent.
type BiasConfig struct {
	Serial          SerialConfig  `koanf:"serial"`
	PollInterval    time.Duration `koanf:"poll-interval"`
	Store           StoreConfig   `koanf:"store"`
	Schema          SchemaConfig  `koanf:"schema"`
}

// BridgeConfig configures the resistance-bridge (SIM921) agent.
type BridgeConfig struct {
	Serial       SerialConfig  `koanf:"serial"`
	PollInterval time.Duration `koanf:"poll-interval"`
	Store        StoreConfig   `koanf:"store"`
	Schema       SchemaConfig  `koanf:"schema"`
	CalibPath    string        `koanf:"calib-path"`
	CurveNumber  int           `koanf:"curve-number"`
}

// CurrentConfig configures the current/heat-switch (MCU) agent.
type CurrentConfig struct {
	Serial       SerialConfig  `koanf:"serial"`
	PollInterval time.Duration `koanf:"poll-interval"`
	Store        StoreConfig   `koanf:"store"`
	Schema       SchemaConfig  `koanf:"schema"`
	Quench       QuenchConfig  `koanf:"quench"`
}

// MagnetConfig configures the magnet-controller agent.
type MagnetConfig struct {
	Ramp    RampConfig    `koanf:"ramp"`
	Persist PersistConfig `koanf:"persist"`
	Store   StoreConfig   `koanf:"store"`
	Schema  SchemaConfig  `koanf:"schema"`
}

// Load seeds defaults with a zero-value-overridden struct (pass a
// pre-populated default to defaults) and overlays path if it exists,
// mirroring cmd/multiserver/main.go's setupconfig.
func Load[T any](path string, defaults T, out *T) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return err
		}
	}
	return k.Unmarshal("", out)
}
