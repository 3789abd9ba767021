package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/device"
)

type planOptions struct {
	barriers bool
	stats    bool
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	o := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan <description.hcl>",
		Short: "Print the compiled schedule of the last frame",
		Long: "plan prints one row per declared pass with the queue it runs on, the fence\n" +
			"values it waits for and signals, and the number of barriers recorded before it.\n" +
			"Culled passes are listed as such.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			return root.run(args[0], func(r frameResult) error {
				if o.stats {
					fmt.Fprintf(w, "frame %d: %s\n", r.index+1, r.graph.Stats())
				}
				if !r.last {
					return nil
				}
				return writePlan(w, r.graph, o.barriers)
			})
		},
	}
	cmd.Flags().BoolVar(&o.barriers, "barriers", false, "list the barriers of every pass")
	cmd.Flags().BoolVar(&o.stats, "stats", false, "print a statistics line for every frame")
	return cmd
}

func writePlan(w io.Writer, g *framegraph.Graph, barriers bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tKIND\tQUEUE\tWAIT\tSIGNAL\tBARRIERS")
	for _, p := range g.Passes() {
		if p.Culled() {
			fmt.Fprintf(tw, "%s\t%s\tculled\t-\t-\t-\n", p.Name(), p.Kind())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			p.Name(), p.Kind(), p.Queue(), fenceValue(p.Wait()), fenceValue(p.Signal()), len(p.Barriers()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !barriers {
		return nil
	}

	names := physicalNames(g)
	for _, p := range g.Passes() {
		list := p.Barriers()
		if p.Culled() || len(list) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", p.Name())
		for _, b := range list {
			fmt.Fprintf(w, "  %s\n", describeBarrier(b, names))
		}
	}
	return nil
}

func fenceValue(v uint64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprint(v)
}

// physicalNames maps realized resources back to the logical resources that
// occupied them this frame.
func physicalNames(g *framegraph.Graph) map[device.ResourceID]string {
	occupants := make(map[device.ResourceID][]string)
	for _, r := range g.Resources() {
		if id := r.Physical(); id.IsValid() {
			occupants[id] = append(occupants[id], r.Name())
		}
	}
	names := make(map[device.ResourceID]string, len(occupants))
	for id, list := range occupants {
		names[id] = strings.Join(list, "|")
	}
	return names
}

func describeBarrier(b device.Barrier, names map[device.ResourceID]string) string {
	name := func(id device.ResourceID) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id.String()
	}
	if b.Kind == device.BarrierAliasing {
		return fmt.Sprintf("alias %s -> %s", name(b.AliasBefore), name(b.Resource))
	}
	return fmt.Sprintf("%s[%s] %s -> %s", name(b.Resource), b.Subresource, b.Before, b.After)
}
