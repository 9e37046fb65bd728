package instrument_test

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nasa-jpl/adrctl/comm"
	"github.com/nasa-jpl/adrctl/instrument"
)

// fakeMainframe simulates a SIM900 mainframe with a SIM921 in slot 3,
// mirroring devices.py's _walk_mainframe test scenario: *IDN? on the
// mainframe's own console returns the mainframe's identity until a slot
// is selected with CONN, after which *IDN? returns the selected module's
// identity until the exit token is sent.
func fakeMainframe(t *testing.T, addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		selected := ""
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "*IDN?" && selected == "":
				fmt.Fprintf(conn, "Stanford_Research_Systems,SIM900,s/n001,1.0\n")
			case line == "*IDN?" && selected == "SIM921":
				fmt.Fprintf(conn, "Stanford_Research_Systems,SIM921,s/n002,2.1\n")
			case strings.HasPrefix(line, "CONN 3,"):
				selected = "SIM921"
			case strings.HasPrefix(line, "CONN"):
				selected = ""
			case line == "xyz" && selected == "SIM921":
				selected = ""
			}
		}
	}()
}

func newTestChannel(t *testing.T, addr string) *instrument.Channel {
	t.Helper()
	dev := comm.NewRemoteDevice(addr, false, &comm.Terminators{Rx: '\n', Tx: '\n'}, nil)
	return instrument.NewChannel(&dev, 1000)
}

func TestMainframeWalkFindsInstrument(t *testing.T) {
	addr := "localhost:18765"
	fakeMainframe(t, addr)
	time.Sleep(50 * time.Millisecond)

	ch := newTestChannel(t, addr)
	desc := instrument.Descriptor{
		Manufacturer:  "Stanford_Research_Systems",
		Model:         "SIM921",
		MainframeExit: "xyz",
	}
	id, err := instrument.Connect(ch, desc, "SIM900")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if id.Model != "SIM921" {
		t.Fatalf("expected SIM921, got %q", id.Model)
	}
}

func TestIdentityMismatchIsFatal(t *testing.T) {
	addr := "localhost:18766"
	fakeMainframe(t, addr)
	time.Sleep(50 * time.Millisecond)

	ch := newTestChannel(t, addr)
	desc := instrument.Descriptor{
		Manufacturer: "Stanford_Research_Systems",
		Model:        "SIM922", // not present in any slot, no mainframe exit configured
	}
	_, err := instrument.Connect(ch, desc, "SIM900")
	if err == nil {
		t.Fatal("expected identity mismatch error")
	}
}

func TestParseIdentity(t *testing.T) {
	id, err := instrument.ParseIdentity("Stanford_Research_Systems,SIM960,s/n1,1.0")
	if err != nil {
		t.Fatalf("ParseIdentity: %v", err)
	}
	if id.Model != "SIM960" || id.SerialNumber != "s/n1" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := instrument.ParseIdentity("not,enough,fields"); err == nil {
		t.Fatal("expected error for malformed identity")
	}
}
