package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncClockTick()
	m.IncClockTick()
	if v := counterValue(t, m.ClockTicksTotal); v != 2 {
		t.Fatalf("expected 2 ticks, got %v", v)
	}

	m.IncEventRouted("scarab.entity.created")
	m.IncHandlerFault()
	m.SetLiveEntities(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 4 {
		t.Fatalf("expected 4 registered metric families, got %d", len(families))
	}
}
