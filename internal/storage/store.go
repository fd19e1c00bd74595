package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Store keeps one directory per run under a base data directory: a
// metadata.json with the run summary and a profile.csv with the run's
// tabular output (scan profile, minimization trajectory, per-atom forces).
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	ForceField string    `json:"force_field"`
	Box        float64   `json:"box"`
	Cutoff     float64   `json:"cutoff"`
	NAtoms     int       `json:"n_atoms"`
	Energy     float64   `json:"energy"`
	MaxForce   float64   `json:"max_force,omitempty"`
}

// Profile is the tabular payload of a run.
type Profile struct {
	Columns []string
	Rows    [][]float64
}

func (s *Store) Save(meta RunMetadata, profile *Profile) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.Kind, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if profile == nil || len(profile.Rows) == 0 {
		return runID, nil
	}

	csvFile, err := os.Create(filepath.Join(runDir, "profile.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if err := w.Write(profile.Columns); err != nil {
		return "", err
	}
	for _, row := range profile.Rows {
		rec := make([]string, len(row))
		for i, val := range row {
			rec[i] = strconv.FormatFloat(val, 'g', 12, 64)
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadProfile(runID string) (*Profile, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "profile.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Profile{}, nil
	}

	p := &Profile{Columns: records[0], Rows: make([][]float64, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make([]float64, 0, len(rec))
		for _, field := range rec {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				continue
			}
			row = append(row, val)
		}
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}
