package main

import (
	"fmt"
	"os"

	// earlyenv imports only the standard library, so its init runs before
	// any package that depends on config or logging.
	_ "comfyoptim/internal/earlyenv"

	"comfyoptim/internal/control"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "comfyoptim",
		Short: "comfyoptim — custom node loader patcher",
		Long: `comfyoptim wraps the host's custom node loader. Extensions listed in
modules_to_silence load with stdout captured instead of printed, and
NO_ALBUMENTATIONS_UPDATE=1 is set before anything else starts.

Config is read from optimizer-config.json next to the patcher (or its parent
directory), unless --config names a file explicitly.

Key commands:
  run --nodes-dir <dir>     Patch the loader and load custom nodes
  doctor                    Check config, env and custom nodes
  config [--init <path>]    Print or write the effective config`,
		Example: `  comfyoptim run --nodes-dir ./custom_nodes
  comfyoptim run --nodes-dir ./custom_nodes --json
  comfyoptim doctor --nodes-dir ./custom_nodes
  comfyoptim config --dir ./custom_nodes/optim`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("comfyoptim v{{.Version}}\n")

	flags := &control.Flags{}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "Path to config file (JSON). Skips probing when set")
	root.PersistentFlags().StringVar(&flags.Dir, "dir", "", "Patcher directory used for config probing. Defaults to the executable's directory")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(control.NewRunCmd(flags))
	root.AddCommand(control.NewDoctorCmd(flags))
	root.AddCommand(control.NewConfigCmd(flags))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%scomfyoptim%s — custom node loader patcher %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sSilences chatty extensions while they load and keeps everything else untouched.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  comfyoptim [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  run --nodes-dir <dir>       patch the loader and load custom nodes")
		writeln("  doctor                      check config, env and custom nodes")
		writeln("  config [--init <path>]      print or write the effective config")
		writeln("")

		write("%sConfig keys%s (optimizer-config.json)\n", bold, reset)
		writeln("  modules_to_silence      list of module names to load with stdout captured")
		writeln("  patcher_log_level       DEBUG | INFO | WARNING | ERROR | CRITICAL")
		writeln("  log_suppressed_output   log captured text at DEBUG")
		writeln("  patcher_debug_mode      force DEBUG logging")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  comfyoptim run --nodes-dir ./custom_nodes")
		writeln("  comfyoptim doctor --nodes-dir ./custom_nodes")
		writeln("  comfyoptim config --init ./custom_nodes/optimizer-config.json")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
