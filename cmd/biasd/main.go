/*Command biasd runs the HEMT bias-monitor agent (spec §2 item 2).

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

	"github.com/nasa-jpl/adrctl/agents/bias"
	"github.com/nasa-jpl/adrctl/config"
	"github.com/nasa-jpl/adrctl/instrument"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store/memstore"
	"github.com/tarm/serial"

	"github.com/nasa-jpl/adrctl/comm"
)

var (
	// Version is injected via ldflags at build time.
	Version = "dev"

	configFileName = "biasd.yml"
)

func defaultConfig() config.BiasConfig {
	return config.BiasConfig{
		Serial: config.SerialConfig{
			Port:           "/dev/ttyUSB0",
			BaudRate:       9600,
			Timeout:        time.Second,
			MaxCommandRate: 20,
		},
		PollInterval: 2 * time.Second,
		Store:        config.StoreConfig{Addr: ""},
		Schema:       config.SchemaConfig{Path: "schema.yaml"},
	}
}

func root() {
	fmt.Println(`biasd polls HEMT bias voltages and currents and publishes them to the shared store.

Usage:
	biasd <command>

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

func printconf(c config.BiasConfig) {
	if err := yaml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("biasd version %s\n", Version)
}

func run(c config.BiasConfig) {
	logger := log.New(os.Stderr, "biasd ", log.LstdFlags)

	sch, err := schema.Load(c.Schema.Path)
	if err != nil {
		logger.Fatalf("load schema: %v", err)
	}
	st := memstore.New(0)

	serialCfg := &serial.Config{Name: c.Serial.Port, Baud: c.Serial.BaudRate, ReadTimeout: c.Serial.Timeout}
	dev := comm.NewRemoteDevice(c.Serial.Port, true, &comm.Terminators{Tx: '\n', Rx: '\n'}, serialCfg)
	ch := instrument.NewChannel(&dev, c.Serial.MaxCommandRate)

	quants := []bias.Quantity{
		{Name: "drain-voltage", WireQuery: "VOLT? 1", Timeseries: "status:bias:drain-voltage"},
		{Name: "drain-current", WireQuery: "CURR? 1", Timeseries: "status:bias:drain-current"},
		{Name: "gate-voltage", WireQuery: "VOLT? 2", Timeseries: "status:bias:gate-voltage"},
	}
	descriptor := instrument.Descriptor{Manufacturer: "JPL", Model: "hemtbias"}
	agent := bias.New(ch, descriptor, "", st, sch, quants, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger.Println("running")
	if err := agent.Run(ctx, c.PollInterval); err != nil {
		logger.Fatal(err)
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	var c config.BiasConfig
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
