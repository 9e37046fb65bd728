package current

import (
	"fmt"
	"testing"
)

func TestAdcToAmps(t *testing.T) {
	// a midscale reading should map to a current proportional to the
	// voltage-divider ratio (r1+r2)/r2.
	got := adcToAmps(adcFullScl / 2)
	want := (adcFullScl / 2) * (adcVref / adcFullScl) * ((r1 + r2) / r2)
	if got != want {
		t.Fatalf("adcToAmps(%v) = %v, want %v", adcFullScl/2, got, want)
	}
}

func TestCheckFrameRoundTrip(t *testing.T) {
	payload := "512.00"
	crc16 := crcTable.CRC16(crcTable.UpdateCrc(crcTable.InitCrc(), []byte(payload)))
	raw := fmt.Sprintf("%s,%04x", payload, crc16)

	got, err := checkFrame(raw)
	if err != nil {
		t.Fatalf("checkFrame: %v", err)
	}
	if got != payload {
		t.Fatalf("checkFrame payload = %q, want %q", got, payload)
	}
}

func TestCheckFrameRejectsCorruption(t *testing.T) {
	payload := "512.00"
	crc16 := crcTable.CRC16(crcTable.UpdateCrc(crcTable.InitCrc(), []byte(payload)))
	raw := fmt.Sprintf("%s,%04x", "512.01", crc16) // payload mutated after CRC computed

	if _, err := checkFrame(raw); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestCheckFrameMissingTrailer(t *testing.T) {
	if _, err := checkFrame("512.00"); err == nil {
		t.Fatal("expected missing-trailer error")
	}
}

func TestHandleHeatswitchIdempotent(t *testing.T) {
	// a nil channel is safe here because handleHeatswitch only reaches
	// a.ch.Send when the requested position differs from the last known
	// one; starting from "closed" and requesting "close" must short-circuit.
	a := &Agent{hsOpen: false}
	a.handleHeatswitch("close")
	if a.hsOpen {
		t.Fatalf("expected no-op close on already-closed switch")
	}
}

func TestHandleHeatswitchRejectsUnknownValue(t *testing.T) {
	a := &Agent{hsOpen: false}
	a.handleHeatswitch("sideways")
	if a.hsOpen {
		t.Fatal("unknown command must not change position")
	}
}
