// Package evidence persists finished research runs to disk so answers and
// their full audit trails can be inspected after the fact.
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zen-systems/nexus/pkg/research"
	"github.com/zen-systems/nexus/pkg/search"
)

// RunRecord is the run-level metadata written to run.json.
type RunRecord struct {
	ID         string              `json:"id"`
	Question   string              `json:"question"`
	StartedAt  time.Time           `json:"started_at"`
	ArchivedAt time.Time           `json:"archived_at"`
	Iterations int                 `json:"iterations"`
	Confidence int                 `json:"confidence"`
	Forced     bool                `json:"forced"`
	Queries    []string            `json:"queries"`
	Gaps       []string            `json:"gaps,omitempty"`
	ToolUsage  map[search.Tool]int `json:"tool_usage,omitempty"`
}

// Archive writes one directory per run under a base directory:
//
//	<base>/<run-id>/run.json     run metadata
//	<base>/<run-id>/answer.json  the final answer
//	<base>/<run-id>/sources.json every retrieved source, markers included
//	<base>/<run-id>/steps/NNN-<kind>.json  the thinking log
type Archive struct {
	baseDir string
}

// NewArchive creates the base directory if needed.
func NewArchive(baseDir string) (*Archive, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("evidence: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Archive{baseDir: baseDir}, nil
}

// RunDir returns the directory for a run ID.
func (a *Archive) RunDir(runID string) string {
	return filepath.Join(a.baseDir, runID)
}

// ArchiveRun persists a finished run. Satisfies research.Archiver.
func (a *Archive) ArchiveRun(st *research.State, answer research.FinalAnswer) error {
	if st == nil || st.RunID == "" {
		return fmt.Errorf("evidence: state with a run ID is required")
	}
	runDir := a.RunDir(st.RunID)
	stepsDir := filepath.Join(runDir, "steps")
	if err := os.MkdirAll(stepsDir, 0755); err != nil {
		return err
	}

	record := RunRecord{
		ID:         st.RunID,
		Question:   st.Question,
		StartedAt:  st.StartedAt,
		ArchivedAt: time.Now().UTC(),
		Iterations: st.Iteration,
		Confidence: answer.Confidence,
		Forced:     answer.Forced,
		Queries:    st.QueriesUsed,
		Gaps:       st.CumulativeGaps,
		ToolUsage:  st.ToolUsage,
	}
	if err := writeJSON(filepath.Join(runDir, "run.json"), record); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(runDir, "answer.json"), answer); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(runDir, "sources.json"), st.AllResults); err != nil {
		return err
	}
	for _, step := range st.ThinkingLog {
		name := fmt.Sprintf("%03d-%s.json", step.ID, step.Kind)
		if err := writeJSON(filepath.Join(stepsDir, name), step); err != nil {
			return err
		}
	}
	return nil
}

// LoadRun reads a run's metadata back.
func (a *Archive) LoadRun(runID string) (RunRecord, error) {
	var record RunRecord
	data, err := os.ReadFile(filepath.Join(a.RunDir(runID), "run.json"))
	if err != nil {
		return record, err
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("evidence: corrupt run record %s: %w", runID, err)
	}
	return record, nil
}

// ListRuns returns archived run IDs, newest first by archive time.
func (a *Archive) ListRuns() ([]RunRecord, error) {
	entries, err := os.ReadDir(a.baseDir)
	if err != nil {
		return nil, err
	}
	records := make([]RunRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := a.LoadRun(entry.Name())
		if err != nil {
			// Half-written or foreign directories are skipped, not fatal.
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ArchivedAt.After(records[j].ArchivedAt)
	})
	return records, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
