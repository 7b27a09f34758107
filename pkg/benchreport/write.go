package benchreport

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteJSON writes an indented report to outPath, or to stdout when outPath
// is empty. Parent directories are created as needed.
func WriteJSON(v any, outPath string) error {
	if outPath == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if dir := filepath.Dir(outPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
