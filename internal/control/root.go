package control

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"comfyoptim/internal/config"
	"comfyoptim/internal/doctor"
	"comfyoptim/internal/host"
	"comfyoptim/internal/logging"
	"comfyoptim/internal/nodes"
	"comfyoptim/internal/patch"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// PatcherDir returns the directory config probing starts from: the flag
// value, or the directory holding the running executable.
func PatcherDir(flags *Flags) string {
	if flags.Dir != "" {
		return flags.Dir
	}
	self, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	return filepath.Dir(self)
}

// loadConfig builds the patcher logger and resolves config through it, then
// applies the configured level to the same logger.
func loadConfig(flags *Flags) (*config.Config, *logrus.Logger) {
	logger := logging.New()
	cfg := config.Resolve(PatcherDir(flags), flags.ConfigPath, logger)
	logging.Apply(logger, cfg)
	return cfg, logger
}

// NewRunCmd installs the patch on the reference host and loads custom nodes.
func NewRunCmd(flags *Flags) *cobra.Command {
	var (
		nodeDirs  []string
		ignore    []string
		logFormat string
		logLevel  string
		logFile   string
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Patch the loader and load custom nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(nodeDirs) == 0 {
				return fmt.Errorf("at least one --nodes-dir is required")
			}
			cfg, logger := loadConfig(flags)

			h := nodes.New(nodeDirs, logging.NewHostLogger(logFormat, logLevel, logFile))
			reg := host.NewRegistry()
			reg.Register("nodes", h)

			p, patched := patch.Bootstrap(cfg, logger, reg)
			h.AddExtension(patch.ExtensionName, patch.Extension())

			ignoreSet := host.IgnoreSet{}
			for _, class := range ignore {
				ignoreSet[class] = struct{}{}
			}
			if err := h.InitExternalCustomNodes(cmd.Context(), ignoreSet); err != nil {
				return err
			}
			logger.Debugf("loader stats: %s", p.Stats())

			summary := RunSummary{
				Patched: patched,
				Module:  p.ModuleName(),
				PatchID: patchID(p),
				Stats:   p.Stats(),
				Imports: importLines(h.Results(), cfg.Silenced),
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "patched: %v\n", summary.Patched)
			for _, line := range summary.Imports {
				status := "ok"
				if !line.OK {
					status = "fail"
				}
				mark := ""
				if line.Silenced {
					mark = " (silenced)"
				}
				fmt.Fprintf(out, "%-4s %6.1fs %s%s\n", status, line.Seconds, line.Module, mark)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&nodeDirs, "nodes-dir", nil, "custom nodes directory (repeatable)")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "node class names to skip when registering (repeatable)")
	cmd.Flags().StringVar(&logFormat, "host-log-format", "text", "host log format: text or json")
	cmd.Flags().StringVar(&logLevel, "host-log-level", "info", "host log level")
	cmd.Flags().StringVar(&logFile, "host-log-file", "", "also write host logs to this file (rotated at 20 MB, 3 backups)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON summary")
	return cmd
}

func patchID(p *patch.Patcher) string {
	if w := p.Wrapper(); w != nil {
		return w.ID()
	}
	return ""
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(flags *Flags) *cobra.Command {
	var nodeDirs []string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check config, environment and custom nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := loadConfig(flags)
			results := doctor.Run(cfg, nodeDirs)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&nodeDirs, "nodes-dir", nil, "custom nodes directory (repeatable)")
	return cmd
}

// NewConfigCmd prints the effective configuration.
func NewConfigCmd(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective patcher configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := loadConfig(flags)
			if dest, _ := cmd.Flags().GetString("init"); dest != "" {
				if err := config.Save(cfg, dest); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dest)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			source := cfg.Path
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "source: %s\n", source)
			return nil
		},
	}
	cmd.Flags().String("init", "", "write the effective config to this path")
	return cmd
}
