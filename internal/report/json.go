package report

import (
	"encoding/json"
	"io"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonEntropies(w io.Writer, files []entropy.FileEntropy) error {
	if files == nil {
		files = []entropy.FileEntropy{}
	}
	return writeJSON(w, files)
}

func jsonStats(w io.Writer, st stats.Stats, outliers []entropy.FileEntropy) error {
	if outliers == nil {
		return writeJSON(w, struct {
			Stats stats.Stats `json:"stats"`
		}{st})
	}
	// An empty, non-nil list encodes as [].
	return writeJSON(w, struct {
		Stats    stats.Stats           `json:"stats"`
		Outliers []entropy.FileEntropy `json:"outliers"`
	}{st, outliers})
}
