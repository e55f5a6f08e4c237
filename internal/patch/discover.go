package patch

import (
	"comfyoptim/internal/host"

	"github.com/sirupsen/logrus"
)

// WellKnownNames are checked before scanning the whole source.
var WellKnownNames = []string{"nodes", "comfy.nodes"}

// Discover finds the host nodes module. Well-known names only need the
// loader and name resolver; the fallback scan requires the full
// host.NodesModule capability set.
func Discover(src ModuleSource, logger logrus.FieldLogger) (string, any, bool) {
	for _, name := range WellKnownNames {
		mod, ok := src.Get(name)
		if !ok {
			continue
		}
		_, loads := mod.(host.NodeLoader)
		_, names := mod.(host.NameResolver)
		if loads && names {
			logger.Debugf("Found ComfyUI nodes module as '%s'.", name)
			return name, mod, true
		}
	}

	var (
		foundName string
		found     any
	)
	src.Range(func(name string, mod any) bool {
		if _, ok := mod.(host.NodesModule); ok {
			foundName, found = name, mod
			return false
		}
		return true
	})
	if found == nil {
		return "", nil, false
	}
	logger.Debugf("Found ComfyUI nodes module by searching as '%s'.", foundName)
	return foundName, found, true
}
