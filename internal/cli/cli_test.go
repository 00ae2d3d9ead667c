package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/studiowebux/perfwatch/internal/history"
	"github.com/studiowebux/perfwatch/internal/replay"
	"github.com/studiowebux/perfwatch/internal/session"
	"github.com/studiowebux/perfwatch/internal/types"
)

const testDump = `{
	"execution": {
		"id": "exec-1",
		"name": "checkout",
		"status": "COMPLETED",
		"pipelines": [{"name": "cart", "children": ["payment"]}, {"name": "browse"}]
	},
	"samples": [
		// cvsValue is positional: ops,tps,errors,n
		{"timestamp": "t1", "name": "cart", "cvsValue": "1,1,0,10"},
		{"timestamp": "t1", "name": "payment", "cvsValue": "2,2,0,10"},
		{"timestamp": "t1", "name": "Total", "cvsValue": "3,3,0,20"},
		{"timestamp": "t2", "name": "cart", "cvsValue": "4,4,1,20"},
		{"timestamp": "t2", "name": "Total", "cvsValue": "5,5,1,40"},
	],
	"errorCounters": [{"name": "payment", "errorNum": 1}, {"name": "Total", "errorNum": 1}],
	"statusCodes": [
		{"name": "cart", "2xx": 19, "5xx": 1},
		{"name": "payment", "2xx": 10},
		{"name": "Total", "2xx": 39, "5xx": 1},
	],
}`

var testKeys = []string{"ops", "tps", "errors", "n"}

func testSource(t *testing.T) *replay.Source {
	t.Helper()
	src, err := replay.Parse([]byte(testDump))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return src
}

func showOptions(format string) ShowOptions {
	return ShowOptions{
		ExecutionID:  "exec-1",
		OutputFormat: format,
		Session:      session.Options{Keys: testKeys},
	}
}

func TestShow_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Show(context.Background(), testSource(t), showOptions(FormatText), &buf); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"checkout (exec-1)", "COMPLETED", "Ticks: 2", "payment", "Max ops: 5.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, colorReset) {
		t.Error("Expected no ANSI codes without color")
	}
}

func TestShow_JSONWithTarget(t *testing.T) {
	opts := showOptions(FormatJSON)
	opts.Target = "paymnt"

	var buf bytes.Buffer
	if err := Show(context.Background(), testSource(t), opts, &buf); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if !reflect.DeepEqual(snap.Data.Targets, []string{"payment"}) {
		t.Errorf("Expected fuzzy match on payment, got %v", snap.Data.Targets)
	}
	if got := snap.Data.ByAPI["payment"]["ops"]; !reflect.DeepEqual(got, []float64{2, 0}) {
		t.Errorf("Unexpected payment series: %v", got)
	}
}

func TestShow_Query(t *testing.T) {
	opts := showOptions(FormatJSON)
	opts.Query = "data.byApi.Total.ops"

	var buf bytes.Buffer
	if err := Show(context.Background(), testSource(t), opts, &buf); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	var ops []float64
	if err := json.Unmarshal(buf.Bytes(), &ops); err != nil {
		t.Fatalf("Expected JSON array, got %q: %v", buf.String(), err)
	}
	if !reflect.DeepEqual(ops, []float64{3, 5}) {
		t.Errorf("Unexpected query result: %v", ops)
	}
}

func TestShow_Tabs(t *testing.T) {
	tests := []struct {
		tab  string
		want []string
	}{
		{tab: "error", want: []string{"RATE", "payment", "2.50%"}},
		{tab: "httpCode", want: []string{"EXCEPTION", "cart", "  payment", "browse", "Total"}},
	}
	for _, tt := range tests {
		t.Run(tt.tab, func(t *testing.T) {
			opts := showOptions(FormatText)
			opts.Tab = tt.tab

			var buf bytes.Buffer
			if err := Show(context.Background(), testSource(t), opts, &buf); err != nil {
				t.Fatalf("Show failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("Expected %q in output:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestShow_Errors(t *testing.T) {
	opts := showOptions(FormatText)
	opts.Tab = "bogus"
	if err := Show(context.Background(), testSource(t), opts, &bytes.Buffer{}); err == nil {
		t.Error("Expected unknown tab error")
	}

	opts = showOptions(FormatText)
	opts.ExecutionID = "missing"
	if err := Show(context.Background(), testSource(t), opts, &bytes.Buffer{}); err == nil {
		t.Error("Expected unknown execution error")
	}

	opts = showOptions(FormatText)
	opts.Target = "zzz"
	if err := Show(context.Background(), testSource(t), opts, &bytes.Buffer{}); err == nil {
		t.Error("Expected no target match error")
	}
}

func TestReplay_SavesReport(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.jsonc")
	if err := os.WriteFile(dump, []byte(testDump), 0644); err != nil {
		t.Fatal(err)
	}

	opts := ShowOptions{OutputFormat: FormatYAML, SavePath: filepath.Join(dir, "report.yaml"), Session: session.Options{Keys: testKeys}}
	if err := Replay(context.Background(), dump, opts, &bytes.Buffer{}); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	data, err := os.ReadFile(opts.SavePath)
	if err != nil {
		t.Fatalf("Expected saved report: %v", err)
	}
	if !strings.Contains(string(data), "executionId: exec-1") {
		t.Errorf("Unexpected yaml report:\n%s", data)
	}
}

func TestSelectTargets(t *testing.T) {
	targets := []string{"cart", "payment", "browse", "Total"}
	tests := []struct {
		pattern  string
		expected []string
	}{
		{pattern: "", expected: targets},
		{pattern: "total", expected: []string{"Total"}},
		{pattern: "pay", expected: []string{"payment"}},
		{pattern: "qqq", expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got := SelectTargets(tt.pattern, targets)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("SelectTargets(%q) = %v, want %v", tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestNarrowSnapshot_StatusGroups(t *testing.T) {
	snap := &session.Snapshot{
		StatusCodes: types.StatusCodeData{
			{Key: "cart", Children: []types.StatusCodeEntry{{Name: "payment"}}},
			{Key: "browse"},
		},
	}
	NarrowSnapshot(snap, []string{"payment"})
	if len(snap.StatusCodes) != 1 || snap.StatusCodes[0].Key != "cart" || len(snap.StatusCodes[0].Children) != 1 {
		t.Errorf("Expected the cart group to keep its payment child, got %+v", snap.StatusCodes)
	}
}

func TestHistory(t *testing.T) {
	mgr, err := history.NewManager(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	opts := showOptions(FormatJSON)
	opts.Session.Recorder = mgr
	if err := Show(context.Background(), testSource(t), opts, &bytes.Buffer{}); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	var runs []*history.Run
	deadline := 200
	for deadline > 0 {
		runs, err = mgr.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
		deadline--
	}
	if len(runs) != 1 {
		t.Fatalf("Expected the drained run to be recorded, got %d", len(runs))
	}

	var buf bytes.Buffer
	if err := History(context.Background(), mgr, HistoryOptions{OutputFormat: FormatText}, &buf); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if !strings.Contains(buf.String(), "exec-1") || !strings.Contains(buf.String(), "COMPLETED") {
		t.Errorf("Unexpected history output:\n%s", buf.String())
	}

	buf.Reset()
	if err := History(context.Background(), mgr, HistoryOptions{Delete: runs[0].ID}, &buf); err != nil {
		t.Fatalf("History delete failed: %v", err)
	}
	out, err := FormatRuns(nil, FormatJSON)
	if err != nil || strings.TrimSpace(out) != "[]" {
		t.Errorf("Expected empty JSON list, got %q (%v)", out, err)
	}
}
