// Package patch wraps a host's custom-node loader so that selected
// extensions load with stdout captured instead of printed.
//
// A Patcher is the single context object for one process: it owns the
// resolved config, the logger, the discovered host module, the original
// loader and name resolver, and the installed Wrapper. Nothing is kept in
// package globals, so tests can build as many Patchers as they like.
package patch

import (
	"os"

	"comfyoptim/internal/config"
	"comfyoptim/internal/earlyenv"
	"comfyoptim/internal/host"
	"comfyoptim/internal/logging"

	"github.com/sirupsen/logrus"
)

// Marker identifies loaders installed by this patcher.
const Marker = "_is_patched_by_000_startup_patcher"

// ModuleSource is the table of live host modules. *host.Registry satisfies it.
type ModuleSource interface {
	Get(name string) (any, bool)
	Range(fn func(name string, mod any) bool)
}

// Finder locates the host nodes module in src.
type Finder func(src ModuleSource, logger logrus.FieldLogger) (name string, mod any, ok bool)

// Patcher holds all patch state for a process.
type Patcher struct {
	cfg    *config.Config
	logger logrus.FieldLogger
	src    ModuleSource
	find   Finder

	moduleName   string
	module       any
	originalLoad host.NodeLoader
	originalName func(modulePath string) string
	wrapper      *Wrapper

	stats counters
}

// Option customises a Patcher.
type Option func(*Patcher)

// WithFinder replaces Discover, mainly for tests.
func WithFinder(f Finder) Option {
	return func(p *Patcher) { p.find = f }
}

// New builds a Patcher. cfg and logger must be non-nil.
func New(cfg *config.Config, logger logrus.FieldLogger, src ModuleSource, opts ...Option) *Patcher {
	p := &Patcher{
		cfg:    cfg,
		logger: logger,
		src:    src,
		find:   Discover,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bootstrap installs the patch and reports the outcome together with the
// state of the early environment variable.
func Bootstrap(cfg *config.Config, logger logrus.FieldLogger, src ModuleSource, opts ...Option) (*Patcher, bool) {
	p := New(cfg, logger, src, opts...)
	if !p.Install() {
		logger.Error("Patcher initialization failed.")
		return p, false
	}
	if earlyenv.Active() {
		logger.Infof("Environment variable '%s' is active with value '%s'.", earlyenv.Name, earlyenv.Value)
	} else {
		logger.Warnf("Environment variable '%s' not found or value mismatch after startup. Current: '%s'",
			earlyenv.Name, os.Getenv(earlyenv.Name))
	}
	logger.Info("Patcher initialization complete.")
	return p, true
}

// Config returns the config the patcher was built with.
func (p *Patcher) Config() *config.Config { return p.cfg }

// ModuleName is the registry name of the patched host module.
func (p *Patcher) ModuleName() string { return p.moduleName }

// Wrapper returns the wrapper this patcher installed, or nil.
func (p *Patcher) Wrapper() *Wrapper { return p.wrapper }

// Extension is the registration surface the patcher presents to the host.
// It contributes no nodes and no web assets.
func Extension() host.Extension {
	return host.Extension{
		NodeClassMappings:       map[string]string{},
		NodeDisplayNameMappings: map[string]string{},
		WebDirectory:            "",
	}
}

// ExtensionName is the name the patcher registers its extension under.
const ExtensionName = logging.Tag
