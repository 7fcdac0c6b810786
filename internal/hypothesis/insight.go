package hypothesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Insight is the immutable artifact a search run leaves behind. The tree
// itself is discarded; only the selected parameters and the narrative
// survive into the next trading cycle.
type Insight struct {
	SelectedParams ParamSet  `json:"selected_parameters"`
	Rationale      string    `json:"rationale_text"`
	Score          float64   `json:"score"`
	BaselineScore  float64   `json:"baseline_score"`
	NodesEvaluated int       `json:"nodes_evaluated"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// WriteInsight persists a dated artifact plus a latest.json swap. Both
// writes are temp-file + rename, so a concurrently running trading cycle
// never observes a partial file.
func WriteInsight(dir string, ins Insight) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("insight: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(ins, "", "  ")
	if err != nil {
		return "", fmt.Errorf("insight: marshal: %w", err)
	}

	dated := filepath.Join(dir, fmt.Sprintf("insight-%s.json", ins.GeneratedAt.UTC().Format("20060102-150405")))
	if err := atomicWrite(dated, data); err != nil {
		return "", err
	}
	if err := atomicWrite(filepath.Join(dir, "latest.json"), data); err != nil {
		return "", err
	}
	return dated, nil
}

// LoadLatest returns the most recent insight, or ok=false when no search has
// run yet (a normal condition on a fresh deployment). Loaded parameters are
// clamped to the search bounds so a degenerate artifact cannot zero out
// position sizing or thresholds.
func LoadLatest(dir string) (Insight, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Insight{}, false, nil
		}
		return Insight{}, false, fmt.Errorf("insight: read latest: %w", err)
	}
	var ins Insight
	if err := json.Unmarshal(data, &ins); err != nil {
		return Insight{}, false, fmt.Errorf("insight: unmarshal latest: %w", err)
	}
	ins.SelectedParams = ins.SelectedParams.clamped()
	return ins, true, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("insight: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("insight: rename: %w", err)
	}
	return nil
}
