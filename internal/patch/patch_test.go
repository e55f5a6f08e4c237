package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"comfyoptim/internal/config"
	"comfyoptim/internal/earlyenv"
	"comfyoptim/internal/host"
	"comfyoptim/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeNodes is a minimal host nodes module with a loader slot.
type fakeNodes struct {
	loader host.NodeLoader
}

func (m *fakeNodes) LoadCustomNode(p string, ignore host.IgnoreSet, parent string) (bool, error) {
	return m.loader.LoadCustomNode(p, ignore, parent)
}
func (m *fakeNodes) GetModuleName(p string) string { return filepath.Base(p) }
func (m *fakeNodes) InitExternalCustomNodes(context.Context, host.IgnoreSet) error { return nil }
func (m *fakeNodes) CustomNodeLoader() host.NodeLoader { return m.loader }
func (m *fakeNodes) SetCustomNodeLoader(l host.NodeLoader) { m.loader = l }

// loaderOnly has the loader and resolver but no external init and no slot.
type loaderOnly struct{}

func (loaderOnly) LoadCustomNode(string, host.IgnoreSet, string) (bool, error) { return true, nil }
func (loaderOnly) GetModuleName(p string) string { return p }

func newTestPatcher(t *testing.T, cfg *config.Config, loader host.LoaderFunc) (*Patcher, *fakeNodes, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.NewTestLogger(&buf)
	mod := &fakeNodes{loader: loader}
	reg := host.NewRegistry()
	reg.Register("nodes", mod)
	p := New(cfg, logger, reg)
	require.True(t, p.Install())
	return p, mod, &buf
}

// fakeStdout stands in for the real stdout so tests can see what leaks.
func fakeStdout(t *testing.T) (*os.File, func() string) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	prev := os.Stdout
	os.Stdout = w
	return w, func() string {
		os.Stdout = prev
		_ = w.Close()
		out, _ := io.ReadAll(r)
		_ = r.Close()
		return string(out)
	}
}

func TestDiscoverPrefersWellKnownNames(t *testing.T) {
	reg := host.NewRegistry()
	reg.Register("custom.other", &fakeNodes{})
	reg.Register("comfy.nodes", loaderOnly{})

	name, mod, ok := Discover(reg, logrus.New())
	require.True(t, ok)
	assert.Equal(t, "comfy.nodes", name)
	assert.Equal(t, loaderOnly{}, mod)
}

func TestDiscoverScanRequiresAllCapabilities(t *testing.T) {
	reg := host.NewRegistry()
	reg.Register("partial", loaderOnly{})
	reg.Register("strings", "not a module")
	reg.Register("server.nodes", &fakeNodes{})

	name, _, ok := Discover(reg, logrus.New())
	require.True(t, ok)
	assert.Equal(t, "server.nodes", name)
}

func TestDiscoverNoMatch(t *testing.T) {
	reg := host.NewRegistry()
	reg.Register("partial", loaderOnly{})
	_, mod, ok := Discover(reg, logrus.New())
	assert.False(t, ok)
	assert.Nil(t, mod)
}

func TestInstallFailsWithoutHostModule(t *testing.T) {
	var buf bytes.Buffer
	p := New(config.Default(), logging.NewTestLogger(&buf), host.NewRegistry())

	assert.NotPanics(t, func() { assert.False(t, p.Install()) })
	assert.Contains(t, buf.String(), "[CRITICAL] Could not find ComfyUI's main nodes module. Patching aborted.")
	assert.Nil(t, p.Wrapper())
}

func TestInstallFailsWithoutLoaderSlot(t *testing.T) {
	var buf bytes.Buffer
	reg := host.NewRegistry()
	reg.Register("nodes", loaderOnly{})
	p := New(config.Default(), logging.NewTestLogger(&buf), reg)

	assert.False(t, p.Install())
	assert.Contains(t, buf.String(), "Target functions not found in module 'nodes'")
}

func TestInstallRecoversFromPanics(t *testing.T) {
	var buf bytes.Buffer
	p := New(config.Default(), logging.NewTestLogger(&buf), host.NewRegistry(),
		WithFinder(func(ModuleSource, logrus.FieldLogger) (string, any, bool) {
			panic("registry exploded")
		}))

	assert.False(t, p.Install())
	assert.Contains(t, buf.String(), "registry exploded")
}

func TestInstallIsIdempotent(t *testing.T) {
	p, mod, buf := newTestPatcher(t, config.Default(), func(string, host.IgnoreSet, string) (bool, error) {
		return true, nil
	})
	first := mod.CustomNodeLoader()
	require.Same(t, p.Wrapper(), first)

	assert.True(t, p.Install())
	second := New(config.Default(), logging.NewTestLogger(buf), registryWith(mod))
	assert.True(t, second.Install())

	assert.Same(t, first, mod.CustomNodeLoader())
	assert.Equal(t, 1, Layers(mod))
	assert.Nil(t, second.Wrapper())
	assert.Contains(t, buf.String(), "already patched by this script")
	assert.Contains(t, buf.String(), "Existing patch id: "+p.Wrapper().ID())
}

func registryWith(mod any) *host.Registry {
	reg := host.NewRegistry()
	reg.Register("nodes", mod)
	return reg
}

func TestWrapperPassesThroughUnsilencedModules(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "name")
		want := rapid.Bool().Draw(rt, "result")
		fail := rapid.Bool().Draw(rt, "fail")
		sentinel := errors.New("load failed")

		cfg := config.Default()
		cfg.ModulesToSilence = []string{"zz-" + name}
		cfg.LogSuppressedOutput = true

		var gotArgs []string
		loader := host.LoaderFunc(func(p string, ignore host.IgnoreSet, parent string) (bool, error) {
			gotArgs = []string{p, parent, fmt.Sprint(len(ignore))}
			fmt.Print("hello from " + p)
			if fail {
				return want, sentinel
			}
			return want, nil
		})
		var buf bytes.Buffer
		mod := &fakeNodes{loader: loader}
		p := New(cfg, logging.NewTestLogger(&buf), registryWith(mod))
		if !p.Install() {
			rt.Fatalf("install failed")
		}

		stdout, done := fakeStdout(t)
		ok, err := mod.LoadCustomNode("/nodes/"+name, host.IgnoreSet{"A": {}}, "custom_nodes")
		same := os.Stdout == stdout
		out := done()

		if !same {
			rt.Fatalf("stdout swapped for unsilenced module")
		}
		if ok != want {
			rt.Fatalf("result changed: got %v want %v", ok, want)
		}
		if fail && err != sentinel {
			rt.Fatalf("error changed: %v", err)
		}
		if !fail && err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if out != "hello from /nodes/"+name {
			rt.Fatalf("stdout output changed: %q", out)
		}
		if gotArgs[0] != "/nodes/"+name || gotArgs[1] != "custom_nodes" || gotArgs[2] != "1" {
			rt.Fatalf("arguments changed: %v", gotArgs)
		}
	})
}

func TestWrapperSilencesConfiguredModule(t *testing.T) {
	cfg := config.Default()
	cfg.ModulesToSilence = []string{"noisy"}
	cfg.LogSuppressedOutput = true
	p, mod, buf := newTestPatcher(t, cfg, func(string, host.IgnoreSet, string) (bool, error) {
		fmt.Println("banner line")
		return true, nil
	})

	stdout, done := fakeStdout(t)
	ok, err := mod.LoadCustomNode("/custom_nodes/noisy", nil, "custom_nodes")
	restored := os.Stdout == stdout
	leaked := done()

	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, restored)
	assert.Empty(t, leaked)
	assert.Contains(t, buf.String(), "Silencing stdout for module: noisy")
	assert.Contains(t, buf.String(), "------START SUPPRESSED OUTPUT------\nbanner line\n-------END SUPPRESSED OUTPUT-------")
	assert.Equal(t, Stats{Loads: 1, Silenced: 1, CapturedBytes: int64(len("banner line\n"))}, p.Stats())
}

func TestWrapperDoesNotLogSuppressedOutputWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.ModulesToSilence = []string{"noisy"}
	cfg.LogSuppressedOutput = false
	_, mod, buf := newTestPatcher(t, cfg, func(string, host.IgnoreSet, string) (bool, error) {
		fmt.Println("secret banner")
		return true, nil
	})

	_, done := fakeStdout(t)
	_, err := mod.LoadCustomNode("/custom_nodes/noisy", nil, "custom_nodes")
	leaked := done()

	require.NoError(t, err)
	assert.Empty(t, leaked)
	assert.NotContains(t, buf.String(), "secret banner")
	assert.NotContains(t, buf.String(), "SUPPRESSED OUTPUT")
}

func TestWrapperPropagatesLoaderErrorAfterRestore(t *testing.T) {
	sentinel := errors.New("import failed")
	cfg := config.Default()
	cfg.ModulesToSilence = []string{"broken"}
	p, mod, buf := newTestPatcher(t, cfg, func(string, host.IgnoreSet, string) (bool, error) {
		fmt.Print("partial output")
		return false, sentinel
	})

	stdout, done := fakeStdout(t)
	ok, err := mod.LoadCustomNode("/custom_nodes/broken", nil, "custom_nodes")
	restored := os.Stdout == stdout
	leaked := done()

	assert.False(t, ok)
	assert.True(t, err == sentinel, "error must be returned unchanged, got %v", err)
	assert.True(t, restored)
	assert.Empty(t, leaked)
	assert.Contains(t, buf.String(), "Restored stdout after module: broken")
	assert.Contains(t, buf.String(), "[ERROR] Error during original load_custom_node for /custom_nodes/broken: import failed")
	assert.Equal(t, int64(1), p.Stats().Failures)
}

func TestWrapperRestoresStdoutOnPanic(t *testing.T) {
	cfg := config.Default()
	cfg.ModulesToSilence = []string{"panicky"}
	_, mod, _ := newTestPatcher(t, cfg, func(string, host.IgnoreSet, string) (bool, error) {
		fmt.Print("about to panic")
		panic("boom")
	})

	stdout, done := fakeStdout(t)
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = mod.LoadCustomNode("/custom_nodes/panicky", nil, "custom_nodes")
	})
	restored := os.Stdout == stdout
	leaked := done()

	assert.True(t, restored)
	assert.Empty(t, leaked)
}

func TestWrapperBypassWithoutOriginals(t *testing.T) {
	var buf bytes.Buffer
	called := false
	mod := &fakeNodes{loader: host.LoaderFunc(func(string, host.IgnoreSet, string) (bool, error) {
		called = true
		return true, nil
	})}
	p := New(config.Default(), logging.NewTestLogger(&buf), registryWith(mod))
	p.module = mod
	w := newWrapper(p)

	ok, err := w.LoadCustomNode("/custom_nodes/x", nil, "custom_nodes")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, called)
	assert.Contains(t, buf.String(), "Original functions not available")

	mod.loader = w
	ok, err = w.LoadCustomNode("/custom_nodes/x", nil, "custom_nodes")
	assert.NoError(t, err)
	assert.False(t, ok)

	p.module = nil
	ok, _ = w.LoadCustomNode("/custom_nodes/x", nil, "custom_nodes")
	assert.False(t, ok)
}

func TestBootstrapReportsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	mod := &fakeNodes{loader: host.LoaderFunc(func(string, host.IgnoreSet, string) (bool, error) { return true, nil })}

	p, ok := Bootstrap(config.Default(), logging.NewTestLogger(&buf), registryWith(mod))
	require.True(t, ok)
	assert.Equal(t, "nodes", p.ModuleName())
	assert.Contains(t, buf.String(), "Environment variable 'NO_ALBUMENTATIONS_UPDATE' is active with value '1'.")
	assert.Contains(t, buf.String(), "Patcher initialization complete.")

	buf.Reset()
	_, ok = Bootstrap(config.Default(), logging.NewTestLogger(&buf), host.NewRegistry())
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "Patcher initialization failed.")
}

func TestBootstrapWarnsWhenEnvironmentChanged(t *testing.T) {
	t.Setenv(earlyenv.Name, "0")
	var buf bytes.Buffer
	mod := &fakeNodes{loader: host.LoaderFunc(func(string, host.IgnoreSet, string) (bool, error) { return true, nil })}

	_, ok := Bootstrap(config.Default(), logging.NewTestLogger(&buf), registryWith(mod))
	require.True(t, ok)
	assert.Contains(t, buf.String(), "[WARNING] Environment variable 'NO_ALBUMENTATIONS_UPDATE' not found or value mismatch after startup. Current: '0'")
	assert.NotContains(t, buf.String(), "is active with value")
	assert.Contains(t, buf.String(), "Patcher initialization complete.")
}

func TestExtensionIsEmpty(t *testing.T) {
	ext := Extension()
	assert.NotNil(t, ext.NodeClassMappings)
	assert.Empty(t, ext.NodeClassMappings)
	assert.Empty(t, ext.NodeDisplayNameMappings)
	assert.Empty(t, ext.WebDirectory)
}
