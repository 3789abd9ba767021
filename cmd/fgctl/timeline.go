package main

import (
	"bytes"
	"io"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph/internal/timeline"
)

func newTimelineCommand(root *rootOptions) *cobra.Command {
	var (
		output string
		opts   timeline.Options
	)
	cmd := &cobra.Command{
		Use:   "timeline <description.hcl>",
		Short: "Render the last frame's heap occupancy as a PNG",
		Long: "timeline draws one band per heap with the passes of the frame as columns.\n" +
			"Every placed resource is a row inside its heap's band, filled over the\n" +
			"passes each logical occupant is alive for, so aliased memory shows up as\n" +
			"differently colored spans on one row.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var png bytes.Buffer
			err := root.run(args[0], func(r frameResult) error {
				if !r.last {
					return nil
				}
				passes := make([]string, 0, len(r.graph.Passes()))
				for _, p := range r.graph.Passes() {
					passes = append(passes, p.Name())
				}
				return timeline.WritePNG(&png, r.graph.HeapSnapshot(), passes, opts)
			})
			if err != nil {
				return err
			}
			return withOutput(cmd, output, func(w io.Writer) error {
				_, err := png.WriteTo(w)
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "heaps.png", "output file, empty for stdout")
	flags.IntVar(&opts.ColumnWidth, "column-width", timeline.DefaultColumnWidth, "pass column width in pixels")
	flags.IntVar(&opts.HeapHeight, "heap-height", timeline.DefaultHeapHeight, "heap band height in pixels")
	flags.Float64Var(&opts.FontSize, "font-size", 0, "label size in points, 0 for the bitmap face")
	flags.IntVar(&opts.Scale, "scale", 1, "integer upscaling factor")
	return cmd
}
