// Package host describes the capabilities a node-loading host exposes and
// keeps the table of live host modules the patcher searches.
package host

import "context"

// IgnoreSet is passed through to the host loader untouched.
type IgnoreSet map[string]struct{}

// NodeLoader loads one custom node from a path.
type NodeLoader interface {
	LoadCustomNode(modulePath string, ignore IgnoreSet, moduleParent string) (bool, error)
}

// LoaderFunc adapts a function to NodeLoader.
type LoaderFunc func(modulePath string, ignore IgnoreSet, moduleParent string) (bool, error)

// LoadCustomNode implements NodeLoader.
func (f LoaderFunc) LoadCustomNode(modulePath string, ignore IgnoreSet, moduleParent string) (bool, error) {
	return f(modulePath, ignore, moduleParent)
}

// NameResolver maps a node path to its logical module name.
type NameResolver interface {
	GetModuleName(modulePath string) string
}

// ExternalNodeInitializer loads every custom node the host knows about.
// Discovery only checks that it exists.
type ExternalNodeInitializer interface {
	InitExternalCustomNodes(ctx context.Context, ignore IgnoreSet) error
}

// NodesModule is the capability triple that identifies a host nodes module.
type NodesModule interface {
	NodeLoader
	NameResolver
	ExternalNodeInitializer
}

// LoaderSlot is the substitution point for the host's loader. The host
// routes every load through whatever loader the slot holds.
type LoaderSlot interface {
	CustomNodeLoader() NodeLoader
	SetCustomNodeLoader(NodeLoader)
}

// Marked is implemented by loaders that carry a patch marker.
type Marked interface {
	PatchMarker() string
}

// Extension is what a plugin contributes to the host at registration time.
// An empty WebDirectory means no web assets.
type Extension struct {
	NodeClassMappings       map[string]string
	NodeDisplayNameMappings map[string]string
	WebDirectory            string
}
