package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	profile := &Profile{
		Columns: []string{"distance", "energy"},
		Rows: [][]float64{
			{2.6, -31.5},
			{2.9, -34.2},
			{3.2, -28.7},
		},
	}

	runID, err := st.Save(RunMetadata{
		Kind:       "scan",
		ForceField: "fluctuating-water",
		Box:        18,
		Cutoff:     8.5,
		NAtoms:     6,
		Energy:     -34.2,
	}, profile)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != "scan" {
		t.Errorf("expected kind 'scan', got '%s'", meta.Kind)
	}
	if meta.NAtoms != 6 {
		t.Errorf("expected 6 atoms, got %d", meta.NAtoms)
	}
	if meta.Energy != -34.2 {
		t.Errorf("expected energy -34.2, got %f", meta.Energy)
	}

	got, err := st.LoadProfile(runID)
	if err != nil {
		t.Fatalf("load profile failed: %v", err)
	}
	if len(got.Columns) != 2 || got.Columns[0] != "distance" {
		t.Errorf("unexpected columns %v", got.Columns)
	}
	if len(got.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got.Rows))
	}
	if got.Rows[1][1] != -34.2 {
		t.Errorf("expected -34.2, got %f", got.Rows[1][1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if _, err := st.Save(RunMetadata{Kind: "energy", NAtoms: 3, Energy: 1.5}, nil); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Kind: "minimize", NAtoms: 6},
		&Profile{Columns: []string{"iter", "energy"}, Rows: [][]float64{{1, -20}}})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "metadata.json")); os.IsNotExist(err) {
		t.Error("metadata.json not created")
	}
	if _, err := os.Stat(filepath.Join(runDir, "profile.csv")); os.IsNotExist(err) {
		t.Error("profile.csv not created")
	}
}
