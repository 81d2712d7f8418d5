package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSummarySaveWritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	s := NewSummary("run-1")
	s.IncDwells()
	s.IncRequests()
	s.IncRequests()
	p := filepath.Join(dir, "summary.json")
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var loaded Summary
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if loaded.DwellsCompleted != 1 || loaded.RequestsIssued != 2 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.RunID != "run-1" {
		t.Fatalf("unexpected run id: %s", loaded.RunID)
	}
}
