package patch

import (
	"strings"

	"comfyoptim/internal/host"

	"github.com/google/uuid"
)

// Wrapper decorates the host's original loader. It implements
// host.NodeLoader and carries Marker.
type Wrapper struct {
	p  *Patcher
	id uuid.UUID
}

func newWrapper(p *Patcher) *Wrapper {
	return &Wrapper{p: p, id: uuid.New()}
}

// PatchMarker implements host.Marked.
func (w *Wrapper) PatchMarker() string { return Marker }

// ID identifies this install in logs and run summaries.
func (w *Wrapper) ID() string { return w.id.String() }

// LoadCustomNode resolves the module name, captures stdout when the module
// is in the silence set, and delegates to the original loader with the
// arguments unchanged. The original result and error are returned as is.
func (w *Wrapper) LoadCustomNode(modulePath string, ignore host.IgnoreSet, moduleParent string) (bool, error) {
	p := w.p
	if p.originalLoad == nil || p.originalName == nil {
		return w.bypass(modulePath, ignore, moduleParent)
	}

	name := p.originalName(modulePath)
	p.stats.loads.Add(1)
	if !p.cfg.Silenced(name) {
		return p.delegate(modulePath, ignore, moduleParent)
	}
	return p.loadSilenced(name, modulePath, ignore, moduleParent)
}

func (p *Patcher) delegate(modulePath string, ignore host.IgnoreSet, moduleParent string) (bool, error) {
	ok, err := p.originalLoad.LoadCustomNode(modulePath, ignore, moduleParent)
	if err != nil {
		p.stats.failures.Add(1)
		p.logger.Errorf("Error during original load_custom_node for %s: %v", modulePath, err)
	}
	return ok, err
}

func (p *Patcher) loadSilenced(name, modulePath string, ignore host.IgnoreSet, moduleParent string) (bool, error) {
	p.logger.Infof("Silencing stdout for module: %s (Path: %s)", name, modulePath)

	c, err := startCapture()
	if err != nil {
		p.logger.Errorf("Cannot redirect stdout for module %s: %v. Loading without silencing.", name, err)
		return p.delegate(modulePath, ignore, moduleParent)
	}
	p.stats.silenced.Add(1)

	var output string
	ok, loadErr := func() (bool, error) {
		defer func() {
			output = c.stop()
			p.logger.Infof("Restored stdout after module: %s", name)
		}()
		return p.originalLoad.LoadCustomNode(modulePath, ignore, moduleParent)
	}()

	p.stats.captured.Add(int64(len(output)))
	if p.cfg.LogSuppressedOutput && output != "" {
		p.logger.Debugf("Suppressed output from %s:\n------START SUPPRESSED OUTPUT------\n%s\n-------END SUPPRESSED OUTPUT-------",
			name, strings.TrimSpace(output))
	}
	if loadErr != nil {
		p.stats.failures.Add(1)
		p.logger.Errorf("Error during original load_custom_node for %s: %v", modulePath, loadErr)
	}
	return ok, loadErr
}

// bypass runs when the wrapper is reached without captured originals. It
// makes one direct call to whatever loader the module holds now.
func (w *Wrapper) bypass(modulePath string, ignore host.IgnoreSet, moduleParent string) (bool, error) {
	p := w.p
	p.logger.Error("Original functions not available for patched load_custom_node. Bypassing patch.")
	var current host.NodeLoader
	switch mod := p.module.(type) {
	case host.LoaderSlot:
		current = mod.CustomNodeLoader()
	case host.NodeLoader:
		current = mod
	}
	if current == nil {
		return false, nil
	}
	if cw, ok := current.(*Wrapper); ok && cw == w {
		return false, nil
	}
	return current.LoadCustomNode(modulePath, ignore, moduleParent)
}
