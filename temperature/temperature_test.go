package temperature_test

import (
	"testing"

	"github.com/nasa-jpl/adrctl/temperature"
)

func TestK2C(t *testing.T) {
	got := temperature.K2C(273.15)
	if got != 0 {
		t.Errorf("K2C(273.15) = %v, want 0", got)
	}
}

func TestK2CBelowZero(t *testing.T) {
	k := temperature.Kelvin(0.1)
	got := temperature.K2C(k)
	want := temperature.Celsius(k - 273.15)
	if got != want {
		t.Errorf("K2C(0.1) = %v, want %v", got, want)
	}
}
