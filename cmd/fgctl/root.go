package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/device"
	"github.com/gogpu/framegraph/internal/fgdesc"

	// Registers the noop backend.
	_ "github.com/gogpu/framegraph/backend/native"
)

// errFrames is returned when --frames is below one.
var errFrames = errors.New("--frames must be at least 1")

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	config  string
	backend string
	width   int
	height  int
	frames  int
	verbose bool
}

func newRootCommand() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fgctl",
		Short: "Compile frame graph descriptions and inspect the result",
		Long: "fgctl loads an HCL frame graph description, declares it on a frame graph,\n" +
			"compiles and executes it for one or more frames, and reports the passes,\n" +
			"barriers, fences and heap layout the compiler produced.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if o.frames < 1 {
				return errFrames
			}
			if o.verbose {
				framegraph.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.config, "config", "", "YAML graph configuration file")
	flags.StringVar(&o.backend, "backend", backend.BackendRecord, "device backend to compile on")
	flags.IntVar(&o.width, "width", 1920, "value of screen.width in descriptions")
	flags.IntVar(&o.height, "height", 1080, "value of screen.height in descriptions")
	flags.IntVar(&o.frames, "frames", 1, "number of frames to run")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "log compile and execute details to stderr")

	cmd.AddCommand(
		newPlanCommand(o),
		newDotCommand(o),
		newTimelineCommand(o),
		newMetricsCommand(o),
		newBackendsCommand(),
	)
	return cmd
}

// frameResult is what a subcommand sees of one executed frame. The graph is
// still compiled when the callback runs.
type frameResult struct {
	index   int
	last    bool
	graph   *framegraph.Graph
	device  backend.Device
	compile time.Duration
}

type frameAdvancer interface {
	AdvanceFrame() uint64
}

type collector interface {
	Collect(timeout time.Duration) (int, error)
}

// run loads the description at path and drives it through o.frames frames,
// calling each after every Execute.
func (o *rootOptions) run(path string, each func(frameResult) error) error {
	cfg, err := framegraph.LoadConfig(o.config)
	if err != nil {
		return err
	}
	desc, err := fgdesc.Load(path, fgdesc.ScreenVars(o.width, o.height))
	if err != nil {
		return err
	}
	dev, err := backend.Open(o.backend)
	if err != nil {
		return err
	}
	defer dev.Close()

	g := framegraph.New(dev, framegraph.WithConfig(cfg))
	defer g.Release()

	for i := range o.frames {
		if err := o.runFrame(g, dev, desc, i, each); err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		if c, ok := dev.(collector); ok {
			if _, err := c.Collect(time.Second); err != nil {
				return fmt.Errorf("frame %d: %w", i+1, err)
			}
		}
		if a, ok := dev.(frameAdvancer); ok {
			a.AdvanceFrame()
		}
	}
	return nil
}

func (o *rootOptions) runFrame(g *framegraph.Graph, dev backend.Device, desc *fgdesc.Description, i int, each func(frameResult) error) error {
	f, err := desc.Apply(g, nil)
	if err != nil {
		g.Clear()
		return err
	}
	defer func() {
		g.Clear()
		f.Release(dev)
	}()

	start := time.Now()
	if err := g.Compile(); err != nil {
		return err
	}
	compile := time.Since(start)
	sub, err := g.Execute(nil, nil)
	if err != nil {
		return err
	}
	for _, cmd := range []device.CommandBuffer{sub.Async, sub.Primary} {
		if cmd == nil {
			continue
		}
		if err := dev.SubmitAndSignal(cmd, 0, 0); err != nil {
			return err
		}
	}
	return each(frameResult{
		index:   i,
		last:    i == o.frames-1,
		graph:   g,
		device:  dev,
		compile: compile,
	})
}
