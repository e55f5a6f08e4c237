package nodes

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
)

const defaultInitTimeout = 30 * time.Second

// runInit executes the manifest's init command in the node directory.
// Stdout is bound to whatever os.Stdout is at call time.
func runInit(ctx context.Context, name, modulePath string, m *Manifest) error {
	args, err := ParseCommand(m.Init)
	if err != nil {
		return fmt.Errorf("parse init: %w", err)
	}
	if len(args) == 0 {
		return nil
	}

	timeout := defaultInitTimeout
	if m.TimeoutSec > 0 {
		timeout = time.Duration(float64(time.Second) * m.TimeoutSec)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = nodeDir(modulePath)
	cmd.Env = os.Environ()
	for k, v := range m.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("COMFY_NODE_NAME=%s", name))
	cmd.Env = append(cmd.Env, fmt.Sprintf("COMFY_NODE_PATH=%s", modulePath))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("init failed: %w", err)
	}
	return nil
}

// ParseCommand splits a command line the way a shell would.
func ParseCommand(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

func nodeDir(modulePath string) string {
	if info, err := os.Stat(modulePath); err == nil && info.IsDir() {
		return modulePath
	}
	return filepath.Dir(modulePath)
}
