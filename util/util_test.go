package util_test

import (
	"testing"
	"time"

	"github.com/nasa-jpl/adrctl/util"
)

func TestClampHigh(t *testing.T) {
	if got := util.Clamp(20, 0, 10); got != 10 {
		t.Errorf("Clamp(20, 0, 10) = %v, want 10", got)
	}
}

func TestClampLow(t *testing.T) {
	if got := util.Clamp(-1, 0, 10); got != 0 {
		t.Errorf("Clamp(-1, 0, 10) = %v, want 0", got)
	}
}

func TestLimiterCheck(t *testing.T) {
	l := &util.Limiter{Min: 0, Max: 10}
	if !l.Check(5) {
		t.Error("expected 5 to satisfy [0, 10]")
	}
	if l.Check(11) {
		t.Error("expected 11 to violate [0, 10]")
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	out := util.SecsToDuration(dur.Seconds())
	if out != dur {
		t.Errorf("SecsToDuration round trip = %v, want %v", out, dur)
	}
}
