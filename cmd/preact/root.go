package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/preactresnet/backend/cpu"
	"github.com/born-ml/preactresnet/resnet"
	"github.com/spf13/cobra"
)

// app holds the flags and state shared by every subcommand.
type app struct {
	logLevel   string
	logFormat  string
	preset     string
	configPath string
	seed       int64
	workers    int

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "preact",
		Short:        "Inspect, run and export pre-activation ResNets for CIFAR",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&a.preset, "preset", "preactresnet20", "built-in architecture: preactresnet20 or preactresnet68")
	flags.StringVar(&a.configPath, "config", "", "YAML model config (overrides --preset)")
	flags.Int64Var(&a.seed, "seed", 0, "initialisation seed (overrides the config seed)")
	flags.IntVar(&a.workers, "threads", 0, "goroutines per CPU kernel (0 = all CPUs)")

	rootCmd.AddCommand(
		newSummaryCmd(a),
		newForwardCmd(a),
		newBenchCmd(a),
		newExportCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// backend creates the CPU backend honouring --threads.
func (a *app) backend() *cpu.Backend {
	if a.workers <= 0 {
		return cpu.New()
	}
	cfg := cpu.DefaultParallelConfig()
	cfg.NumWorkers = a.workers
	cfg.Enabled = a.workers > 1
	return cpu.New(cpu.WithParallel(cfg))
}

// config resolves --config or --preset.
func (a *app) config() (resnet.Config, error) {
	if a.configPath != "" {
		return resnet.LoadConfig(a.configPath)
	}
	return resnet.Preset(a.preset)
}

// network builds the selected network.
func (a *app) network(cmd *cobra.Command) (*resnet.Network[*cpu.Backend], error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	var opts []resnet.Option
	if cmd.Flags().Changed("seed") {
		opts = append(opts, resnet.WithSeed(a.seed))
	}

	net, err := resnet.New(cfg, a.backend(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", cfg.DisplayName(), err)
	}
	a.logger.Debug("network built",
		"architecture", net.Config().DisplayName(),
		"blocks", net.Config().Blocks,
		"num_classes", net.Config().NumClasses,
		"parameters", net.NumParameters())
	return net, nil
}
