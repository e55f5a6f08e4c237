package patch

import (
	"runtime/debug"

	"comfyoptim/internal/host"
	"comfyoptim/internal/logging"
)

// Install finds the host module and puts a Wrapper in its loader slot.
// It reports false when the module or its capabilities are missing, or when
// replacement panics. A loader that already carries Marker is left alone
// and counts as success.
func (p *Patcher) Install() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Critical(p.logger, "Unexpected error while patching custom node loader: %v\n%s", r, debug.Stack())
			ok = false
		}
	}()

	p.logger.Info("Attempting to patch ComfyUI custom node loader...")

	name, mod, found := p.find(p.src, p.logger)
	if !found {
		logging.Critical(p.logger, "Could not find ComfyUI's main nodes module. Patching aborted.")
		return false
	}
	p.moduleName, p.module = name, mod

	slot, hasSlot := mod.(host.LoaderSlot)
	resolver, hasResolver := mod.(host.NameResolver)
	if !hasSlot || !hasResolver {
		logging.Critical(p.logger, "Target functions not found in module '%s'. Patching aborted.", name)
		return false
	}
	current := slot.CustomNodeLoader()
	if current == nil {
		logging.Critical(p.logger, "Module '%s' has no custom node loader installed. Patching aborted.", name)
		return false
	}

	if isPatched(current) {
		p.logger.Info("ComfyUI loader already patched by this script. Skipping.")
		if w, ok := current.(*Wrapper); ok {
			p.logger.Debugf("Existing patch id: %s", w.ID())
		}
		return true
	}

	p.originalLoad = current
	p.originalName = resolver.GetModuleName

	w := newWrapper(p)
	slot.SetCustomNodeLoader(w)
	p.wrapper = w
	p.logger.Debugf("Patch id: %s", w.ID())

	p.logger.Infof("Successfully patched 'load_custom_node' in module '%s'.", name)
	p.logger.Infof("Modules configured to be silenced: %v", p.cfg.ModulesToSilence)
	return true
}

func isPatched(l host.NodeLoader) bool {
	m, ok := l.(host.Marked)
	return ok && m.PatchMarker() == Marker
}

// Layers counts how many patch wrappers are stacked in the slot of mod.
func Layers(mod any) int {
	slot, ok := mod.(host.LoaderSlot)
	if !ok {
		return 0
	}
	n := 0
	for l := slot.CustomNodeLoader(); l != nil && isPatched(l); {
		n++
		w, ok := l.(*Wrapper)
		if !ok {
			break
		}
		l = w.p.originalLoad
	}
	return n
}
