package control

import (
	"comfyoptim/internal/nodes"
	"comfyoptim/internal/patch"
)

// Flags are the persistent root flags shared by subcommands.
type Flags struct {
	ConfigPath string
	Dir        string
}

// RunSummary is printed by `run --json`.
type RunSummary struct {
	Patched bool         `json:"patched"`
	Module  string       `json:"module,omitempty"`
	PatchID string       `json:"patch_id,omitempty"`
	Stats   patch.Stats  `json:"stats"`
	Imports []ImportLine `json:"imports"`
}

type ImportLine struct {
	Path     string  `json:"path"`
	Module   string  `json:"module"`
	Seconds  float64 `json:"seconds"`
	OK       bool    `json:"ok"`
	Error    string  `json:"error,omitempty"`
	Silenced bool    `json:"silenced"`
}

func importLines(results []nodes.ImportResult, silenced func(string) bool) []ImportLine {
	out := make([]ImportLine, 0, len(results))
	for _, r := range results {
		line := ImportLine{
			Path:     r.Path,
			Module:   r.Module,
			Seconds:  r.Duration.Seconds(),
			OK:       r.OK,
			Silenced: silenced(r.Module),
		}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		out = append(out, line)
	}
	return out
}
