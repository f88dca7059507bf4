package statsexport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netcore/netcore/stats"
)

func TestCollectorEmitsOneMetricPerSnapshotField(t *testing.T) {
	c := NewCollector("netcore", []string{"attach_id"}, prometheus.Labels{"app": "test"}, nil)

	var descCount int
	descs := make(chan *prometheus.Desc, 64)
	c.Describe(descs)
	close(descs)
	for range descs {
		descCount++
	}
	if descCount == 0 {
		t.Fatalf("Describe emitted no descriptors")
	}

	counters := &stats.Counters{}
	counters.AddRx(3, 900)
	counters.AddRxCRC()
	c.Add("attach-1", counters, []string{"attach-1"})
	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c.Count())
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != descCount {
		t.Fatalf("Gather returned %d families, want %d (one per Snapshot field)", len(families), descCount)
	}

	c.Remove("attach-1")
	if c.Count() != 0 {
		t.Fatalf("Count() after Remove = %d, want 0", c.Count())
	}
}

func TestParseTagHandlesQuotedHelpWithCommas(t *testing.T) {
	got := parseTag(`name=rx_packets,prom_type=counter,prom_help='Frames, received and delivered.'`)
	if got["name"] != "rx_packets" {
		t.Fatalf("name = %q", got["name"])
	}
	if got["prom_type"] != "counter" {
		t.Fatalf("prom_type = %q", got["prom_type"])
	}
	if got["prom_help"] != "Frames, received and delivered." {
		t.Fatalf("prom_help = %q", got["prom_help"])
	}
}
