package doctor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"comfyoptim/internal/config"
	"comfyoptim/internal/earlyenv"
	"comfyoptim/internal/nodes"

	"github.com/sirupsen/logrus"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks against cfg and the custom node dirs.
func Run(cfg *config.Config, nodeDirs []string) []Result {
	results := []Result{
		checkConfig(cfg),
		checkEnv(),
	}
	results = append(results, checkNodeDirs(nodeDirs)...)
	results = append(results, checkSilenced(cfg, nodeDirs)...)
	results = append(results, checkInitCommands(nodeDirs)...)
	return results
}

func checkConfig(cfg *config.Config) Result {
	if cfg.Path == "" {
		return Result{Name: "config", Pass: true, Detail: "defaults (no " + config.FileName + " found)"}
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return Result{Name: "config", Pass: false, Detail: err.Error()}
	}
	return Result{Name: "config", Pass: true, Detail: cfg.Path}
}

func checkEnv() Result {
	if err := earlyenv.Err(); err != nil {
		return Result{Name: "env", Pass: false, Detail: err.Error()}
	}
	if !earlyenv.Active() {
		return Result{Name: "env", Pass: false, Detail: fmt.Sprintf("%s=%q", earlyenv.Name, os.Getenv(earlyenv.Name))}
	}
	return Result{Name: "env", Pass: true, Detail: earlyenv.Name + "=" + earlyenv.Value}
}

// checkNodeDirs reports whether each custom nodes dir exists, is a
// directory and can be listed.
func checkNodeDirs(nodeDirs []string) []Result {
	if len(nodeDirs) == 0 {
		return []Result{{Name: "nodes dir", Pass: false, Detail: "none given; pass --nodes-dir"}}
	}
	out := make([]Result, 0, len(nodeDirs))
	for _, dir := range nodeDirs {
		info, err := os.Stat(dir)
		if err != nil {
			out = append(out, Result{Name: "nodes dir", Pass: false, Detail: err.Error()})
			continue
		}
		if !info.IsDir() {
			out = append(out, Result{Name: "nodes dir", Pass: false, Detail: dir + ": not a directory"})
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			out = append(out, Result{Name: "nodes dir", Pass: false, Detail: err.Error()})
			continue
		}
		out = append(out, Result{Name: "nodes dir", Pass: true, Detail: fmt.Sprintf("%s (%d entries)", dir, len(entries))})
	}
	return out
}

// checkSilenced reports silence-set entries that match no custom node.
func checkSilenced(cfg *config.Config, nodeDirs []string) []Result {
	if len(cfg.ModulesToSilence) == 0 {
		return nil
	}
	h := nodes.New(nodeDirs, quietLogger())
	present := map[string]bool{}
	for _, dir := range nodeDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			present[h.GetModuleName(filepath.Join(dir, e.Name()))] = true
		}
	}
	var out []Result
	for _, m := range cfg.ModulesToSilence {
		if present[m] {
			out = append(out, Result{Name: "silence", Pass: true, Detail: m})
			continue
		}
		out = append(out, Result{Name: "silence", Pass: false, Detail: m + ": no such custom node"})
	}
	return out
}

func checkInitCommands(nodeDirs []string) []Result {
	var out []Result
	for _, dir := range nodeDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			m, err := nodes.ReadManifest(path)
			if err != nil || strings.TrimSpace(m.Init) == "" {
				continue
			}
			out = append(out, checkExecutable(e.Name(), m.Init, path))
		}
	}
	return out
}

// checkExecutable resolves an init command the way the host runs it:
// relative paths from the node directory, bare names from PATH.
func checkExecutable(label, command, nodeDir string) Result {
	args, err := nodes.ParseCommand(command)
	if err != nil || len(args) == 0 {
		return Result{Name: label, Pass: false, Detail: fmt.Sprintf("cannot parse init %q", command)}
	}
	path := os.ExpandEnv(args[0])
	if strings.ContainsAny(path, `/\`) {
		if !filepath.IsAbs(path) {
			path = filepath.Join(nodeDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; init must name an executable"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
