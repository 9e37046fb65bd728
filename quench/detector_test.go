package quench_test

import (
	"testing"

	"github.com/nasa-jpl/adrctl/quench"
)

// TestSlopeDetectorWindowNotFull mirrors spec §8's boundary behavior: a window
// shorter than N yields no event regardless of input.
func TestSlopeDetectorWindowNotFull(t *testing.T) {
	d := quench.NewSlopeDetector(30, -0.005)
	t0 := int64(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		if fired := d.Add(t0+int64(i)*1000, 9.25-float64(i)*0.5); fired {
			t.Fatalf("tick %d: fired before window filled", i)
		}
	}
	if d.Latched() {
		t.Fatal("should not be latched before window fills")
	}
}

// TestSlopeDetectorQuenchDuringSoak mirrors spec §8 scenario 3: in
// soaking at 9.25A, a run of rapidly falling samples should cross the
// slope threshold and fire on the second consecutive positive tick.
func TestSlopeDetectorQuenchDuringSoak(t *testing.T) {
	d := quench.NewSlopeDetector(5, -0.005)
	t0 := int64(1_700_000_000_000)
	samples := []float64{9.25, 9.25, 9.25, 9.25, 9.25, 9.20, 9.00, 8.50, 7.50}

	fired := false
	for i, v := range samples {
		if d.Add(t0+int64(i)*1000, v) {
			fired = true
			break
		}
	}
	if !fired {
		t.Fatal("expected quench event to fire on falling current")
	}
	if !d.Latched() {
		t.Fatal("expected detector to be latched after firing")
	}
}

func TestSlopeDetectorStableCurrentNoFire(t *testing.T) {
	d := quench.NewSlopeDetector(5, -0.005)
	t0 := int64(1_700_000_000_000)
	for i := 0; i < 20; i++ {
		if fired := d.Add(t0+int64(i)*1000, 9.25); fired {
			t.Fatalf("tick %d: unexpected fire on flat current", i)
		}
	}
}

func TestResidualDetectorFlagsOutlier(t *testing.T) {
	d := quench.NewResidualDetector(10, 3)
	t0 := int64(1_700_000_000_000)
	// nine stable samples to build the fit window, then a collapse.
	vals := []float64{9.25, 9.25, 9.25, 9.25, 9.25, 9.25, 9.25, 9.25, 9.25, 2.0}
	fired := false
	for i, v := range vals {
		if d.Add(t0+int64(i)*1000, v) {
			fired = true
		}
	}
	_ = fired // first trigger only sets warning, not fired; assert state instead
	if !d.Warning() {
		t.Fatal("expected warning to be set after outlier sample")
	}
}
