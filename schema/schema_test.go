package schema_test

import (
	"errors"
	"testing"

	"github.com/nasa-jpl/adrctl/schema"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.SettingDef{
		{
			Key:     "device-settings:sim960:pid-p:value",
			Device:  "sim960",
			Command: "GAIN",
			Value:   schema.ValueSpec{Range: &schema.Range{Lo: 0, Hi: 100}},
		},
		{
			Key:     "device-settings:sim960:mode",
			Device:  "sim960",
			Command: "AMAN",
			Value: schema.ValueSpec{Enum: map[string]string{
				"manual": "0",
				"pid":    "1",
			}},
		},
	})
}

func TestValueSpecRange(t *testing.T) {
	s := testSchema()
	cmd, err := schema.NewCommand(s, "device-settings:sim960:pid-p:value", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cmd.WireString(), "GAIN 10"; got != want {
		t.Fatalf("wire string = %q, want %q", got, want)
	}

	if _, err := schema.NewCommand(s, "device-settings:sim960:pid-p:value", "101"); !errors.Is(err, schema.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestValueSpecEnum(t *testing.T) {
	s := testSchema()
	cmd, err := schema.NewCommand(s, "device-settings:sim960:mode", "pid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cmd.WireString(), "AMAN 1"; got != want {
		t.Fatalf("wire string = %q, want %q", got, want)
	}

	if _, err := schema.NewCommand(s, "device-settings:sim960:mode", "bogus"); !errors.Is(err, schema.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestUnknownSetting(t *testing.T) {
	s := testSchema()
	if _, err := schema.NewCommand(s, "device-settings:nope:x", "1"); !errors.Is(err, schema.ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
}

func TestOrderAndForDevice(t *testing.T) {
	s := testSchema()
	order := s.Order()
	if len(order) != 2 || order[0] != "device-settings:sim960:pid-p:value" {
		t.Fatalf("unexpected order: %v", order)
	}
	dev := s.ForDevice("sim960")
	if len(dev) != 2 {
		t.Fatalf("expected 2 settings for sim960, got %d", len(dev))
	}
}
