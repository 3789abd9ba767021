package main

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph/backend/native"
	"github.com/gogpu/framegraph/metrics"
)

// memoryReporter is implemented by backends that account device memory.
type memoryReporter interface {
	Stats() native.MemoryStats
}

func newMetricsCommand(root *rootOptions) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "metrics <description.hcl>",
		Short: "Run the frames and print the collected metrics",
		Long: "metrics records every frame into a fresh Prometheus registry and prints\n" +
			"it in the text exposition format once the last frame has executed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := prometheus.NewRegistry()
			rec, err := metrics.New(metrics.Config{Namespace: namespace, Registry: registry})
			if err != nil {
				return err
			}
			err = root.run(args[0], func(r frameResult) error {
				rec.ObserveCompile(r.compile)
				rec.ObserveFrame(r.graph.Stats())
				if m, ok := r.device.(memoryReporter); ok {
					s := m.Stats()
					rec.ObserveDeviceMemory(s.UsedBytes, s.TotalBytes)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return writeMetrics(cmd.OutOrStdout(), registry)
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "framegraph", "metric name prefix")
	return cmd
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
