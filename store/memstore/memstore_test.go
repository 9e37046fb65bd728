package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nasa-jpl/adrctl/store"
	"github.com/nasa-jpl/adrctl/store/memstore"
)

func TestSetGetWriteThrough(t *testing.T) {
	s := memstore.New(0)
	msgs, cancel := s.Subscribe("status:magnet:state")
	defer cancel()

	if err := s.Set("status:magnet:state", "ramping"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("status:magnet:state", true)
	if err != nil || !ok || v != "ramping" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	select {
	case m := <-msgs:
		if m.Value != "ramping" {
			t.Fatalf("unexpected publish value %q", m.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("expected write-through publish")
	}
}

func TestGetMissing(t *testing.T) {
	s := memstore.New(0)
	_, _, err := s.Get("nope", true)
	if !errors.Is(err, store.ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	_, ok, err := s.Get("nope", false)
	if err != nil || ok {
		t.Fatalf("expected ok=false, nil error, got %v %v", ok, err)
	}
}

func TestTimeseriesDeclaredRequired(t *testing.T) {
	s := memstore.New(0)
	if err := s.AddTS("status:current:samples", 1.0); !errors.Is(err, store.ErrNoSuchTimeseries) {
		t.Fatalf("expected ErrNoSuchTimeseries, got %v", err)
	}
	if err := s.CreateTS("status:current:samples"); err != nil {
		t.Fatalf("CreateTS: %v", err)
	}
	if err := s.CreateTS("status:current:samples"); err != nil {
		t.Fatalf("CreateTS should be idempotent, got %v", err)
	}
	if err := s.AddTS("status:current:samples", 9.25); err != nil {
		t.Fatalf("AddTS: %v", err)
	}
	sm, ok, err := s.GetTS("status:current:samples")
	if err != nil || !ok || sm.Value != 9.25 {
		t.Fatalf("GetTS = %+v, %v, %v", sm, ok, err)
	}
}

func TestRangeTS(t *testing.T) {
	s := memstore.New(0)
	_ = s.CreateTS("status:current:samples")
	_ = s.AddTS("status:current:samples", 1)
	time.Sleep(2 * time.Millisecond)
	_ = s.AddTS("status:current:samples", 2)

	all, err := s.RangeTS("status:current:samples", 0, time.Now().UnixMilli()+1000)
	if err != nil {
		t.Fatalf("RangeTS: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(all))
	}
}

func TestListen(t *testing.T) {
	s := memstore.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Listen(ctx, "event:quenching")
	_ = s.Publish("event:quenching", "1700000000", true)

	select {
	case m := <-ch:
		if m.Channel != "event:quenching" || m.Value != "1700000000" {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event:quenching message")
	}

	v, ok, err := s.Get("event:quenching", true)
	if err != nil || !ok || v != "1700000000" {
		t.Fatalf("expected write-through on Publish(store=true), got %q %v %v", v, ok, err)
	}
}
