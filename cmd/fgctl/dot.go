package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newDotCommand(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dot <description.hcl>",
		Short: "Write the last frame's graph in Graphviz DOT form",
		Example: "  fgctl dot deferred.hcl | dot -Tsvg > deferred.svg\n" +
			"  fgctl dot deferred.hcl -o deferred.dot",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutput(cmd, output, func(w io.Writer) error {
				return root.run(args[0], func(r frameResult) error {
					if !r.last {
						return nil
					}
					return r.graph.WriteDOT(w)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// withOutput calls fn with the file at path, or with the command's standard
// output when path is empty. The file is created only once fn has something
// to write to it.
func withOutput(cmd *cobra.Command, path string, fn func(io.Writer) error) (err error) {
	if path == "" {
		return fn(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return fn(f)
}
