/*Command bridged runs the resistance-bridge agent (spec §2 item 3).

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

	"github.com/nasa-jpl/adrctl/agents/bridge"
	"github.com/nasa-jpl/adrctl/calib"
	"github.com/nasa-jpl/adrctl/comm"
	"github.com/nasa-jpl/adrctl/config"
	"github.com/nasa-jpl/adrctl/instrument"
	"github.com/nasa-jpl/adrctl/magnet"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store/memstore"
	"github.com/tarm/serial"
)

var (
	Version        = "dev"
	configFileName = "bridged.yml"
)

func defaultConfig() config.BridgeConfig {
	return config.BridgeConfig{
		Serial: config.SerialConfig{
			Port:           "/dev/ttyUSB1",
			BaudRate:       9600,
			Timeout:        time.Second,
			MaxCommandRate: 20,
		},
		PollInterval: time.Second,
		Store:        config.StoreConfig{Addr: ""},
		Schema:       config.SchemaConfig{Path: "schema.yaml"},
		CalibPath:    "x65327.340.txt",
		CurveNumber:  3,
	}
}

func root() {
	fmt.Println(`bridged drives the AC resistance bridge and publishes stage temperature, resistance, and output voltage.

Usage:
	bridged <command>

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

func printconf(c config.BridgeConfig) {
	if err := yaml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("bridged version %s\n", Version)
}

func run(c config.BridgeConfig) {
	logger := log.New(os.Stderr, "bridged ", log.LstdFlags)

	sch, err := schema.Load(c.Schema.Path)
	if err != nil {
		logger.Fatalf("load schema: %v", err)
	}
	curve, err := calib.Load(c.CalibPath, "mkidarray", calib.SemilogR)
	if err != nil {
		logger.Fatalf("load calibration curve: %v", err)
	}
	st := memstore.New(0)

	serialCfg := &serial.Config{Name: c.Serial.Port, Baud: c.Serial.BaudRate, ReadTimeout: c.Serial.Timeout}
	dev := comm.NewRemoteDevice(c.Serial.Port, true, &comm.Terminators{Tx: '\n', Rx: '\n'}, serialCfg)
	ch := instrument.NewChannel(&dev, c.Serial.MaxCommandRate)

	blocks := magnet.DefaultBlockTable()
	stateFn := func() magnet.State {
		v, ok, err := st.Get("status:magnet:state", false)
		if err != nil || !ok {
			return magnet.Off
		}
		return magnet.State(v)
	}

	agent := bridge.New(ch, "", st, sch, blocks, stateFn, curve, logger)

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
	var c config.BridgeConfig
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
