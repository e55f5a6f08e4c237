// Package nodes is a small reference host that loads custom nodes from
// directories. Every load goes through the loader held in its slot, which is
// where the patcher installs its wrapper.
package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"comfyoptim/internal/host"

	"github.com/sirupsen/logrus"
)

// ParentLabel is the module parent passed for external custom nodes.
const ParentLabel = "custom_nodes"

// ImportResult records one load attempt.
type ImportResult struct {
	Path     string
	Module   string
	Duration time.Duration
	OK       bool
	Err      error
}

// Host owns the custom node directories and the loader slot.
type Host struct {
	dirs   []string
	logger logrus.FieldLogger

	mu       sync.Mutex
	initCtx  context.Context // set while InitExternalCustomNodes runs
	loader   host.NodeLoader
	classes  map[string]string // class -> module
	display  map[string]string // class -> display name
	webDirs  map[string]string // module -> web directory
	results  []ImportResult
	extNames []string
}

// New creates a host for the given custom node directories.
func New(dirs []string, logger logrus.FieldLogger) *Host {
	h := &Host{
		dirs:    append([]string(nil), dirs...),
		logger:  logger,
		classes: map[string]string{},
		display: map[string]string{},
		webDirs: map[string]string{},
	}
	h.loader = host.LoaderFunc(h.load)
	return h
}

// CustomNodeLoader implements host.LoaderSlot.
func (h *Host) CustomNodeLoader() host.NodeLoader {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loader
}

// SetCustomNodeLoader implements host.LoaderSlot.
func (h *Host) SetCustomNodeLoader(l host.NodeLoader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loader = l
}

// LoadCustomNode loads one node through the slot loader.
func (h *Host) LoadCustomNode(modulePath string, ignore host.IgnoreSet, moduleParent string) (bool, error) {
	return h.CustomNodeLoader().LoadCustomNode(modulePath, ignore, moduleParent)
}

// GetModuleName returns the logical module name for a node path: the base
// name without a file extension and without an "@version" suffix.
func (h *Host) GetModuleName(modulePath string) string {
	clean := strings.TrimRight(modulePath, `/\`)
	base := filepath.Base(clean)
	if info, err := os.Stat(clean); err == nil && !info.IsDir() {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if i := strings.Index(base, "@"); i > 0 {
		base = base[:i]
	}
	return base
}

func (h *Host) load(modulePath string, ignore host.IgnoreSet, moduleParent string) (bool, error) {
	name := h.GetModuleName(modulePath)
	m, err := ReadManifest(modulePath)
	if err != nil {
		h.logger.Warnf("Cannot import %s module for custom nodes: %v", modulePath, err)
		return false, nil
	}

	if err := runInit(h.loadContext(), name, modulePath, m); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for class, display := range m.Nodes {
		if _, skip := ignore[class]; skip {
			continue
		}
		h.classes[class] = name
		if display != "" {
			h.display[class] = display
		}
	}
	if m.WebDirectory != "" {
		h.webDirs[name] = filepath.Join(nodeDir(modulePath), m.WebDirectory)
	}
	h.logger.WithField("parent", moduleParent).Debugf("loaded custom node %s", name)
	return true, nil
}

// loadContext is the context init commands run under: the one passed to
// InitExternalCustomNodes while it runs, Background otherwise.
func (h *Host) loadContext() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initCtx == nil {
		return context.Background()
	}
	return h.initCtx
}

func (h *Host) setLoadContext(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initCtx = ctx
}

// InitExternalCustomNodes loads every node found in the host directories,
// in name order, skipping hidden entries, __pycache__ and *.disabled.
// Cancelling ctx stops the walk and kills a running init command.
func (h *Host) InitExternalCustomNodes(ctx context.Context, ignore host.IgnoreSet) error {
	h.setLoadContext(ctx)
	defer h.setLoadContext(nil)

	for _, dir := range h.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			h.logger.Warnf("custom nodes dir %s: %v", dir, err)
			continue
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := e.Name()
			if skipEntry(name, e.IsDir()) {
				continue
			}
			path := filepath.Join(dir, name)
			start := time.Now()
			ok, err := h.LoadCustomNode(path, ignore, ParentLabel)
			if err != nil {
				h.logger.Warnf("Cannot import %s module for custom nodes: %v", path, err)
			}
			h.record(ImportResult{
				Path:     path,
				Module:   h.GetModuleName(path),
				Duration: time.Since(start),
				OK:       ok && err == nil,
				Err:      err,
			})
		}
	}
	h.logImportTimes()
	return ctx.Err()
}

func skipEntry(name string, isDir bool) bool {
	switch {
	case strings.HasPrefix(name, "."), name == "__pycache__", strings.HasSuffix(name, ".disabled"):
		return true
	case !isDir && !strings.EqualFold(filepath.Ext(name), ".toml"):
		return true
	}
	return false
}

func (h *Host) record(r ImportResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
}

func (h *Host) logImportTimes() {
	results := h.Results()
	if len(results) == 0 {
		return
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Duration < results[j].Duration })
	var b strings.Builder
	b.WriteString("Import times for custom nodes:")
	for _, r := range results {
		failed := ""
		if !r.OK {
			failed = " (IMPORT FAILED)"
		}
		fmt.Fprintf(&b, "\n%6.1f seconds%s: %s", r.Duration.Seconds(), failed, r.Path)
	}
	h.logger.Info(b.String())
}

// AddExtension merges a registration surface into the host tables.
func (h *Host) AddExtension(name string, ext host.Extension) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for class := range ext.NodeClassMappings {
		h.classes[class] = name
	}
	for class, display := range ext.NodeDisplayNameMappings {
		h.display[class] = display
	}
	if ext.WebDirectory != "" {
		h.webDirs[name] = ext.WebDirectory
	}
	h.extNames = append(h.extNames, name)
}

// Results returns a copy of the recorded load attempts.
func (h *Host) Results() []ImportResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ImportResult(nil), h.results...)
}

// NodeClasses returns class -> module for every registered node class.
func (h *Host) NodeClasses() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.classes))
	for k, v := range h.classes {
		out[k] = v
	}
	return out
}

// DisplayName returns the display name for class, falling back to class.
func (h *Host) DisplayName(class string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok := h.display[class]; ok {
		return d
	}
	return class
}

// WebDirectories returns module -> web asset directory.
func (h *Host) WebDirectories() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.webDirs))
	for k, v := range h.webDirs {
		out[k] = v
	}
	return out
}

// Extensions lists the names passed to AddExtension.
func (h *Host) Extensions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.extNames...)
}
