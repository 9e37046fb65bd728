package magnet_test

import (
	"context"
	"testing"
	"time"

	magnetagent "github.com/nasa-jpl/adrctl/agents/magnet"
	coremagnet "github.com/nasa-jpl/adrctl/magnet"
	"github.com/nasa-jpl/adrctl/schema"
	"github.com/nasa-jpl/adrctl/store/memstore"
)

func testCfg() coremagnet.Config {
	return coremagnet.Config{
		SoakCurrentA:     9.25,
		RampRateAPerS:    0.5,
		DerampRateAPerS:  -0.5,
		SoakTime:         time.Second,
		MaxRegulateTempK: 0.5,
		MaxCurrentSlopeA: 0.5,
		TickInterval:     10 * time.Millisecond,
		ZeroCurrentEps:   0.001,
	}
}

// TestGetColdDrivesCommandsThroughStore exercises the full wiring path: a
// bare get-cold message on the store should produce the heat-switch close
// command on the command bus, without the agent ever touching an
// instrument type directly.
func TestGetColdDrivesCommandsThroughStore(t *testing.T) {
	st := memstore.New(0)
	sch := schema.New(nil)

	// seed telemetry a downstream instrument agent would normally publish.
	_ = st.Set("status:currentduino:heatswitch", "closed")

	a := magnetagent.New(st, sch, t.TempDir()+"/state.txt", testCfg(), nil)

	hsCmds, cancel := st.Subscribe("command:device-settings:currentduino:heatswitch")
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go a.Run(ctx, testCfg().TickInterval)

	if err := st.Publish("command:get-cold", "", false); err != nil {
		t.Fatalf("publish get-cold: %v", err)
	}

	select {
	case msg := <-hsCmds:
		if msg.Value != "close" {
			t.Fatalf("expected heat-switch close command, got %q", msg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a heat-switch close command after get-cold")
	}
	if a.Machine().State() != coremagnet.HSClosing {
		t.Fatalf("expected hs_closing, got %s", a.Machine().State())
	}
}

func TestAbortCooldownCommand(t *testing.T) {
	st := memstore.New(0)
	sch := schema.New(nil)
	a := magnetagent.New(st, sch, t.TempDir()+"/state.txt", testCfg(), nil)
	a.Machine().Bootstrap()
	if err := a.Machine().Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go a.Run(ctx, testCfg().TickInterval)

	if err := st.Publish("command:abort-cooldown", "", false); err != nil {
		t.Fatalf("publish abort-cooldown: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for a.Machine().State() != coremagnet.Deramping {
		select {
		case <-deadline:
			t.Fatalf("expected deramping, still %s", a.Machine().State())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestQuenchEventTransitionsToOff(t *testing.T) {
	st := memstore.New(0)
	sch := schema.New(nil)
	a := magnetagent.New(st, sch, t.TempDir()+"/state.txt", testCfg(), nil)
	a.Machine().Bootstrap()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go a.Run(ctx, testCfg().TickInterval)

	if err := st.Publish("event:quenching", "123", false); err != nil {
		t.Fatalf("publish quench: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for a.Machine().State() != coremagnet.Off {
		select {
		case <-deadline:
			t.Fatalf("expected off after quench, still %s", a.Machine().State())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
