package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/born-ml/preactresnet/resnet"
	"github.com/born-ml/preactresnet/tensor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the layer tree, stage sizes and parameter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			net, err := a.network(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, net)
			for i, s := range net.Stages() {
				fmt.Fprintf(out, "layer%d: %d blocks\n", i+1, s.Len())
			}
			fmt.Fprintf(out, "parameters: %d\n", net.NumParameters())
			return nil
		},
	}
}

func newForwardCmd(a *app) *cobra.Command {
	var (
		batch  int
		random bool
	)

	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Run one forward pass on a zero or random batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch < 1 {
				return fmt.Errorf("--batch must be at least 1, got %d", batch)
			}
			net, err := a.network(cmd)
			if err != nil {
				return err
			}

			input := inputBatch(net, batch, random, a.seed)
			start := time.Now()
			logits := net.Forward(input)
			elapsed := time.Since(start)

			a.logger.Info("forward pass", "batch", batch, "random", random, "elapsed", elapsed)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "input:  %v\n", input.Shape())
			fmt.Fprintf(out, "logits: %v\n", logits.Shape())
			fmt.Fprintf(out, "predictions: %v\n", argmax(logits.Data(), logits.Shape()[1]))
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 1, "batch size")
	cmd.Flags().BoolVar(&random, "random", false, "use N(0,1) input instead of zeros")
	return cmd
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		batch      int
		workers    int
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run concurrent forward passes against one network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch < 1 || workers < 1 || iterations < 1 {
				return errors.New("--batch, --workers and --iterations must be at least 1")
			}
			net, err := a.network(cmd)
			if err != nil {
				return err
			}
			input := inputBatch(net, batch, true, a.seed)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)

			start := time.Now()
			for i := 0; i < iterations; i++ {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					iterStart := time.Now()
					logits := net.Forward(input)
					a.logger.Debug("iteration done", "iteration", i, "elapsed", time.Since(iterStart), "shape", logits.Shape())
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("bench interrupted: %w", err)
			}
			elapsed := time.Since(start)

			images := batch * iterations
			throughput := float64(images) / elapsed.Seconds()
			a.logger.Info("bench finished", "images", images, "workers", workers, "elapsed", elapsed)

			fmt.Fprintf(cmd.OutOrStdout(), "%d forward passes of %d images with %d workers in %v (%.1f images/s)\n",
				iterations, batch, workers, elapsed.Round(time.Millisecond), throughput)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 8, "batch size per forward pass")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent forward passes")
	cmd.Flags().IntVar(&iterations, "iterations", 16, "total forward passes")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the initial parameters and BatchNorm buffers as SafeTensors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			net, err := a.network(cmd)
			if err != nil {
				return err
			}
			if err := resnet.Save(out, net); err != nil {
				return err
			}

			a.logger.Info("exported", "path", out, "tensors", len(net.StateDict()), "parameters", net.NumParameters())
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "model.safetensors", "output file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "preact %s\n", version)
		},
	}
}

// inputBatch returns a [batch, 3, 32, 32] tensor of zeros or N(0,1) values.
func inputBatch[B tensor.Backend](net *resnet.Network[B], batch int, random bool, seed int64) *tensor.Tensor[float32, B] {
	shape := tensor.Shape{batch, resnet.InputChannels, resnet.InputSize, resnet.InputSize}
	if !random {
		return tensor.Zeros[float32](shape, net.Backend())
	}
	//nolint:gosec // Synthetic benchmark input (not security-critical)
	return tensor.Randn[float32](shape, rand.New(rand.NewSource(seed)), net.Backend())
}

// argmax returns the index of the largest logit in each row.
func argmax(logits []float32, classes int) []int {
	preds := make([]int, len(logits)/classes)
	for i := range preds {
		row := logits[i*classes : (i+1)*classes]
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		preds[i] = best
	}
	return preds
}
