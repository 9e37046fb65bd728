/*Command magnetd runs the magnet-controller agent (spec §2 item 5): the
cooldown state machine, driven entirely off the shared store.

Grounded on cmd/multiserver/main.go's run/mkconf/conf/version command
dispatch and koanf-based config loading in the teacher repo.
*/
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	magnetagent "github.com/nasa-jpl/adrctl/agents/magnet"
	"github.com/nasa-jpl/adrctl/config"
	coremagnet "github.com/nasa-jpl/adrctl/magnet"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store/memstore"
)

var (
	Version        = "dev"
	configFileName = "magnetd.yml"
)

func defaultConfig() config.MagnetConfig {
	return config.MagnetConfig{
		Ramp: config.RampConfig{
			SoakCurrentA:     9.3,
			RampRateAPerS:    0.01,
			DerampRateAPerS:  -0.005,
			SoakTime:         20 * time.Minute,
			MaxRegulateTempK: 0.3,
			MaxCurrentSlopeA: 0.01,
			TickInterval:     time.Second,
			ZeroCurrentEps:   0.005,
		},
		Persist: config.PersistConfig{StatePath: "magnet-state.txt"},
		Store:   config.StoreConfig{Addr: ""},
		Schema:  config.SchemaConfig{Path: "schema.yaml"},
	}
}

func root() {
	fmt.Println(`magnetd sequences the ADR cooldown cycle: heat-switch close, current ramp, soak, heat-switch open, regulation, deramp.

Usage:
	magnetd <command>

Commands:
	run
	mkconf
	conf
	version`)
}

func mkconf() {
	c := defaultConfig()
	f, err := os.Create(configFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yaml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf(c config.MagnetConfig) {
	if err := yaml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("magnetd version %s\n", Version)
}

func run(c config.MagnetConfig) {
	logger := log.New(os.Stderr, "magnetd ", log.LstdFlags)

	sch, err := schema.Load(c.Schema.Path)
	if err != nil {
		logger.Fatalf("load schema: %v", err)
	}
	st := memstore.New(0)

	cfg := coremagnet.Config{
		SoakCurrentA:     c.Ramp.SoakCurrentA,
		RampRateAPerS:    c.Ramp.RampRateAPerS,
		DerampRateAPerS:  c.Ramp.DerampRateAPerS,
		SoakTime:         c.Ramp.SoakTime,
		MaxRegulateTempK: c.Ramp.MaxRegulateTempK,
		MaxCurrentSlopeA: c.Ramp.MaxCurrentSlopeA,
		TickInterval:     c.Ramp.TickInterval,
		ZeroCurrentEps:   c.Ramp.ZeroCurrentEps,
	}

	agent := magnetagent.New(st, sch, c.Persist.StatePath, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger.Println("running")
	if err := agent.Run(ctx, cfg.TickInterval); err != nil {
		logger.Fatal(err)
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	var c config.MagnetConfig
	if err := config.Load(configFileName, defaultConfig(), &c); err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch strings.ToLower(args[1]) {
	case "mkconf":
		mkconf()
	case "conf":
		printconf(c)
	case "run":
		run(c)
	case "version":
		pversion()
	default:
		log.Fatalf("unknown command %q", args[1])
	}
}
