package hub

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillm/powertrader/pkg/utils"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, err := New(t.TempDir(), utils.NewLogger("error"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestSnapshotRoundtrip(t *testing.T) {
	h := newTestHub(t)

	in := map[string]interface{}{"total_value": 1234.56, "paused": false}
	if err := h.WriteSnapshot(StatusFile, in); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}

	var out map[string]interface{}
	if !h.ReadSnapshot(StatusFile, &out) {
		t.Fatal("ReadSnapshot() = false, want true")
	}
	if out["total_value"] != 1234.56 {
		t.Errorf("total_value = %v, want 1234.56", out["total_value"])
	}

	// После записи не должно остаться временных файлов
	entries, _ := os.ReadDir(h.Dir())
	for _, e := range entries {
		if e.Name() != StatusFile {
			t.Errorf("unexpected leftover file: %s", e.Name())
		}
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	h := newTestHub(t)

	var out map[string]interface{}
	if h.ReadSnapshot("nope.json", &out) {
		t.Error("ReadSnapshot() = true for missing file, want false")
	}
}

func TestReadSnapshot_Corrupt(t *testing.T) {
	h := newTestHub(t)

	if err := os.WriteFile(h.Path(StatusFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if h.ReadSnapshot(StatusFile, &out) {
		t.Error("ReadSnapshot() = true for corrupt file, want false")
	}
}

func TestAppendAndReadLog(t *testing.T) {
	h := newTestHub(t)

	for i := 0; i < 3; i++ {
		if err := h.AppendLog(TradeHistoryFile, map[string]int{"n": i}); err != nil {
			t.Fatalf("AppendLog() error = %v", err)
		}
	}

	var got []int
	err := h.ReadLog(TradeHistoryFile, func(line json.RawMessage) {
		var rec map[string]int
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, rec["n"])
	})
	if err != nil {
		t.Fatalf("ReadLog() error = %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("ReadLog() lines = %v, want [0 1 2]", got)
	}
}

func TestReadLog_SkipsCorruptLines(t *testing.T) {
	h := newTestHub(t)

	content := "{\"n\":1}\ngarbage line\n{\"n\":2}\n"
	if err := os.WriteFile(h.Path(DecisionLogFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	count := 0
	if err := h.ReadLog(DecisionLogFile, func(json.RawMessage) { count++ }); err != nil {
		t.Fatalf("ReadLog() error = %v", err)
	}
	if count != 2 {
		t.Errorf("valid lines = %d, want 2", count)
	}
}

func TestRotateLog(t *testing.T) {
	h := newTestHub(t)

	for i := 0; i < 10; i++ {
		if err := h.AppendLog(DecisionLogFile, map[string]int{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.RotateLog(DecisionLogFile, 4); err != nil {
		t.Fatalf("RotateLog() error = %v", err)
	}

	var got []int
	h.ReadLog(DecisionLogFile, func(line json.RawMessage) {
		var rec map[string]int
		json.Unmarshal(line, &rec)
		got = append(got, rec["n"])
	})
	if len(got) != 4 {
		t.Fatalf("lines after rotation = %d, want 4", len(got))
	}
	if got[0] != 6 || got[3] != 9 {
		t.Errorf("kept lines = %v, want last four [6 7 8 9]", got)
	}
}

func TestRotateLog_UnderLimit(t *testing.T) {
	h := newTestHub(t)

	h.AppendLog(DecisionLogFile, map[string]int{"n": 1})
	before, _ := os.ReadFile(h.Path(DecisionLogFile))

	if err := h.RotateLog(DecisionLogFile, 100); err != nil {
		t.Fatalf("RotateLog() error = %v", err)
	}
	after, _ := os.ReadFile(h.Path(DecisionLogFile))
	if string(before) != string(after) {
		t.Error("log under the limit should not be rewritten")
	}
}

func TestWriteJSONAtomic_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	if err := WriteJSONAtomic(path, map[string]int{"v": 1}); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSONAtomic(path, map[string]int{"v": 2}); err != nil {
		t.Fatal(err)
	}

	var out map[string]int
	ok, err := ReadJSONFile(path, &out)
	if err != nil || !ok {
		t.Fatalf("ReadJSONFile() ok=%v err=%v", ok, err)
	}
	if out["v"] != 2 {
		t.Errorf("v = %d, want 2", out["v"])
	}
}
