package main

import (
	"fmt"
	"os"

	_ "comfyoptim/internal/earlyenv"

	"comfyoptim/internal/config"
	"comfyoptim/internal/logging"
)

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	cfg := config.Resolve(dir, "", logging.New())
	fmt.Printf("path=%q silence=%d level=%s log_suppressed=%v debug=%v\n",
		cfg.Path, len(cfg.ModulesToSilence), cfg.PatcherLogLevel, cfg.LogSuppressedOutput, cfg.PatcherDebugMode)
	for i, m := range cfg.ModulesToSilence {
		fmt.Printf("silence %d %s\n", i, m)
	}
}
