package perfdata

import (
	"math"
	"testing"

	"github.com/studiowebux/perfwatch/internal/types"
)

func item(name string, values map[string]float64) types.ValueItem {
	return types.ValueItem{Name: name, Values: values}
}

func tick(ts string, items ...types.ValueItem) types.ListData {
	return types.ListData{Timestamp: ts, Values: items}
}

// assertCrossLengths verifies that both indexes agree on every series length
func assertCrossLengths(t *testing.T, in *Ingestor) {
	t.Helper()
	for _, target := range in.Targets() {
		for _, key := range in.keys {
			a := len(in.Series(target, key))
			b := len(in.IndexSeries(key, target))
			if a != b {
				t.Fatalf("Length mismatch for %s/%s: byAPI=%d byIndex=%d", target, key, a, b)
			}
		}
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewIngestor_SeedsTotal(t *testing.T) {
	in := NewIngestor(nil, nil)

	if len(in.Targets()) != 1 || in.Targets()[0] != types.TotalTarget {
		t.Fatalf("Expected seeded Total target, got %v", in.Targets())
	}
	if in.Series(types.TotalTarget, "ops") == nil {
		t.Error("Expected empty, non-nil Total ops series")
	}
	if in.Unit(types.TotalTarget, "brps") != UnitKB {
		t.Errorf("Expected KB unit, got %s", in.Unit(types.TotalTarget, "brps"))
	}
}

func TestIngestor_EmptyBatchIsNoop(t *testing.T) {
	in := NewIngestor([]string{"ops"}, nil)
	in.Ingest([]types.ListData{tick("t1", item("Total", map[string]float64{"ops": 3}))})

	res := in.Ingest(nil)
	if res.Accepted != 0 || res.Replaced {
		t.Errorf("Expected no-op result, got %+v", res)
	}
	if in.Len() != 1 || len(in.Series("Total", "ops")) != 1 {
		t.Error("Empty batch must not clear existing state")
	}
}

func TestIngestor_AppendsOnePushPerTargetMetric(t *testing.T) {
	in := NewIngestor([]string{"ops", "tps"}, nil)

	in.Ingest([]types.ListData{
		tick("t1", item("a", map[string]float64{"ops": 1}), item("Total", map[string]float64{"ops": 1, "tps": 2})),
	})
	in.Ingest([]types.ListData{
		tick("t2", item("a", map[string]float64{"ops": 2}), item("b", nil), item("Total", map[string]float64{"ops": 3})),
		tick("t3", item("a", map[string]float64{"ops": 4}), item("b", map[string]float64{"tps": 1}), item("Total", map[string]float64{"ops": 5})),
	})

	if in.Len() != 3 {
		t.Fatalf("Expected 3 ticks, got %d", in.Len())
	}
	if got := len(in.Series("a", "ops")); got != 3 {
		t.Errorf("Expected 3 values for a/ops, got %d", got)
	}
	// b was discovered mid-execution
	if got := in.Series("b", "tps"); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Unexpected b/tps series: %v", got)
	}
	if got := in.IndexSeries("ops", "Total"); len(got) != 3 || got[2] != 5 {
		t.Errorf("Unexpected ops/Total index series: %v", got)
	}
	expectedTargets := []string{"Total", "a", "b"}
	for i, target := range expectedTargets {
		if in.Targets()[i] != target {
			t.Errorf("Expected target %s at %d, got %s", target, i, in.Targets()[i])
		}
	}
	assertCrossLengths(t, in)
}

func TestIngestor_ReplacesOverlappingTick(t *testing.T) {
	in := NewIngestor([]string{"ops"}, nil)

	in.Ingest([]types.ListData{
		tick("t1", item("a", map[string]float64{"ops": 1}), item("Total", map[string]float64{"ops": 1})),
		tick("t2", item("a", map[string]float64{"ops": 2}), item("Total", map[string]float64{"ops": 2})),
	})

	res := in.Ingest([]types.ListData{
		tick("t2", item("a", map[string]float64{"ops": 20}), item("Total", map[string]float64{"ops": 22})),
	})

	if !res.Replaced {
		t.Error("Expected overlapping tick to be replaced")
	}
	if in.Len() != 2 {
		t.Fatalf("Expected 2 ticks after redelivery, got %d", in.Len())
	}
	if got := in.Series("Total", "ops"); len(got) != 2 || got[1] != 22 {
		t.Errorf("Expected last Total value 22, got %v", got)
	}
	if got := in.IndexSeries("ops", "a"); len(got) != 2 || got[1] != 20 {
		t.Errorf("Expected last a value 20, got %v", got)
	}
	if in.Timestamps()[1] != "t2" {
		t.Errorf("Expected last timestamp t2, got %s", in.Timestamps()[1])
	}
	// the replaced value no longer counts in the aggregate
	if agg := in.Aggregate("ops"); agg.Max != 22 || agg.Count != 2 || agg.Mean != 11.5 {
		t.Errorf("Unexpected aggregate after replace: %+v", agg)
	}
	assertCrossLengths(t, in)
}

func TestIngestor_RedeliveryContinuesAfterReplace(t *testing.T) {
	in := NewIngestor([]string{"ops"}, nil)

	in.Ingest([]types.ListData{tick("t1", item("Total", map[string]float64{"ops": 1}))})
	in.Ingest([]types.ListData{
		tick("t1", item("Total", map[string]float64{"ops": 2})),
		tick("t2", item("Total", map[string]float64{"ops": 3})),
	})
	in.Ingest([]types.ListData{tick("t2", item("Total", map[string]float64{"ops": 4}))})

	got := in.Series("Total", "ops")
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("Expected [2 4], got %v", got)
	}
}

func TestIngestor_Aggregates(t *testing.T) {
	in := NewIngestor(nil, nil)

	in.Ingest([]types.ListData{
		tick("t1", item("Total", map[string]float64{"ops": 10, "tps": 4})),
		tick("t2", item("Total", map[string]float64{"ops": 30, "tps": 2})),
	})
	in.Ingest([]types.ListData{
		tick("t3", item("Total", map[string]float64{"ops": 20, "tps": 6})),
	})

	ops := in.Aggregate("ops")
	if ops.Min != 10 || ops.Max != 30 || ops.Mean != 20 || ops.Count != 3 {
		t.Errorf("Unexpected ops aggregate: %+v", ops)
	}
	if in.MaxOps() != 30 {
		t.Errorf("Expected max ops 30, got %v", in.MaxOps())
	}
	if in.MaxTps() != 6 {
		t.Errorf("Expected max tps 6, got %v", in.MaxTps())
	}
}

func TestIngestor_ByteRatePromotion(t *testing.T) {
	in := NewIngestor(nil, nil)

	in.Ingest([]types.ListData{
		tick("t1", item("a", map[string]float64{"brps": 1024}), item("Total", map[string]float64{"brps": 512000})),
	})
	if in.Unit("Total", "brps") != UnitKB {
		t.Fatal("Expected KB before crossing threshold")
	}
	if got := in.Series("Total", "brps"); got[0] != 500 {
		t.Fatalf("Expected 500 KB, got %v", got)
	}

	res := in.Ingest([]types.ListData{
		tick("t2", item("a", map[string]float64{"brps": 2048}), item("Total", map[string]float64{"brps": 2048000})),
	})

	if len(res.Promotions) != 1 || res.Promotions[0] != (Promotion{Target: "Total", Metric: "brps"}) {
		t.Errorf("Expected one Total/brps promotion, got %+v", res.Promotions)
	}
	if in.Unit("Total", "brps") != UnitMB {
		t.Fatal("Expected MB after crossing threshold")
	}
	if in.Unit("a", "brps") != UnitKB {
		t.Error("Promotion must be per target")
	}
	if in.Unit("Total", "bwps") != UnitKB {
		t.Error("Promotion must be per metric")
	}

	got := in.Series("Total", "brps")
	if !approx(got[0], 500.0/1024) || !approx(got[1], 2000.0/1024) {
		t.Errorf("Expected retroactive rescale, got %v", got)
	}
	idx := in.IndexSeries("brps", "Total")
	if !approx(idx[0], got[0]) || !approx(idx[1], got[1]) {
		t.Errorf("Index series not rescaled: %v vs %v", idx, got)
	}

	// a small value never demotes the unit
	in.Ingest([]types.ListData{
		tick("t3", item("a", nil), item("Total", map[string]float64{"brps": 1024})),
	})
	if in.Unit("Total", "brps") != UnitMB {
		t.Error("Unit must never revert to KB")
	}
	if got := in.Series("Total", "brps"); !approx(got[2], 1.0/1024) {
		t.Errorf("Expected new value in MB, got %v", got[2])
	}

	agg := in.Aggregate("brps")
	if !approx(agg.Max, 2048000.0/1024/1024) {
		t.Errorf("Expected aggregate max in MB, got %v", agg.Max)
	}
	assertCrossLengths(t, in)
}

func TestIngestor_Reset(t *testing.T) {
	in := NewIngestor([]string{"ops", "brps"}, nil)
	in.Ingest([]types.ListData{
		tick("t1", item("a", map[string]float64{"ops": 1}), item("Total", map[string]float64{"brps": 4096000})),
	})

	in.Reset()

	if in.Len() != 0 || in.LastTimestamp() != "" {
		t.Error("Expected empty timestamps after reset")
	}
	if len(in.Targets()) != 1 || in.Targets()[0] != "Total" {
		t.Errorf("Expected only Total after reset, got %v", in.Targets())
	}
	if in.Unit("Total", "brps") != UnitKB {
		t.Error("Expected unit reset to KB")
	}
	if in.MaxOps() != 0 {
		t.Error("Expected aggregates reset")
	}
}

func TestIngestor_StateIsDeepCopy(t *testing.T) {
	in := NewIngestor([]string{"ops"}, nil)
	in.Ingest([]types.ListData{tick("t1", item("Total", map[string]float64{"ops": 1}))})

	st := in.State()
	st.ByAPI["Total"]["ops"][0] = 99
	st.Timestamps[0] = "changed"

	if in.Series("Total", "ops")[0] != 1 {
		t.Error("State must not alias ingestor series")
	}
	if in.Timestamps()[0] != "t1" {
		t.Error("State must not alias timestamps")
	}
	if st.Aggregates["ops"].Max != 1 {
		t.Errorf("Expected aggregate in state, got %+v", st.Aggregates["ops"])
	}
}

func TestIngestor_AccessorsReturnCopies(t *testing.T) {
	in := NewIngestor(nil, nil)
	in.Ingest([]types.ListData{
		tick("t1", item("Total", map[string]float64{"brps": 512000, "ops": 1})),
	})

	series := in.Series("Total", "brps")
	index := in.IndexSeries("brps", "Total")
	timestamps := in.Timestamps()
	targets := in.Targets()

	// promotes Total/brps, then replaces t2 with a redelivery
	in.Ingest([]types.ListData{
		tick("t2", item("Total", map[string]float64{"brps": 2048000, "ops": 2})),
	})
	in.Ingest([]types.ListData{
		tick("t2", item("Total", map[string]float64{"brps": 2048000, "ops": 3})),
		tick("t3", item("new", nil), item("Total", nil)),
	})

	if series[0] != 500 || index[0] != 500 {
		t.Errorf("Expected held series to keep the KB value, got %v and %v", series, index)
	}
	if len(timestamps) != 1 || timestamps[0] != "t1" {
		t.Errorf("Expected held timestamps unchanged, got %v", timestamps)
	}
	if len(targets) != 1 {
		t.Errorf("Expected held targets unchanged, got %v", targets)
	}

	targets[0] = "mutated"
	if in.Targets()[0] != types.TotalTarget {
		t.Error("Mutating a returned slice must not change the ingestor")
	}
	assertCrossLengths(t, in)
}
