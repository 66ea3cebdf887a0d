package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/calderml/calder/pkg/coloring"
	"github.com/calderml/calder/pkg/graphio"
	"github.com/calderml/calder/pkg/ir"
	"github.com/calderml/calder/pkg/simplify"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// options holds the pipeline flags.
type options struct {
	allocOp     string
	alignment   int64
	noSimplify  bool
	dumpIR      bool
	dumpColored bool
	stats       bool
	output      string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "calder [flags] graph.yaml",
		Short:         "Rewrite an inference graph's allocations onto one shared scratch buffer",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runPipeline(out, opts, args[0]); err != nil {
				fmt.Fprintf(errOut, "calder: %v\n", err)
				return err
			}
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.Flags().StringVar(&opts.allocOp, "alloc-op", "allocate", "operator name identifying allocation nodes")
	cmd.Flags().Int64Var(&opts.alignment, "alignment", coloring.DefaultAlignment, "scratch offset alignment in bytes")
	cmd.Flags().BoolVar(&opts.noSimplify, "no-simplify", false, "skip the reshape simplification pass")
	cmd.Flags().BoolVar(&opts.dumpIR, "dump-ir", false, "print the graph before any pass runs")
	cmd.Flags().BoolVar(&opts.dumpColored, "dump-colored", false, "print the graph after memory coloring")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print scratch statistics")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the rewritten graph to a file")
	return cmd
}

func runPipeline(out io.Writer, opts *options, path string) error {
	p, err := graphio.LoadFile(path)
	if err != nil {
		return err
	}
	if opts.dumpIR {
		fmt.Fprint(out, p.String())
	}

	if !opts.noSimplify {
		simplify.Apply(p)
	}
	mc := coloring.MemoryColoring{AllocationOp: opts.allocOp, Alignment: opts.alignment}
	if err := mc.Apply(p); err != nil {
		return err
	}

	if opts.dumpColored {
		fmt.Fprint(out, p.String())
	}
	if opts.stats {
		printStats(out, p)
	}
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := graphio.Write(f, p); err != nil {
			return err
		}
	}
	return nil
}

func printStats(out io.Writer, p *ir.Program) {
	loads := 0
	offsets := map[int64]bool{}
	for _, h := range p.Instructions() {
		if ld, ok := p.At(h).Op.(ir.Load); ok {
			loads++
			offsets[ld.Offset] = true
		}
	}
	var scratchBytes int64
	if h, ok := p.Parameter(coloring.ScratchName); ok {
		scratchBytes = p.Shape(h).Bytes()
	}
	fmt.Fprintf(out, "allocations: %d\n", loads)
	fmt.Fprintf(out, "scratch slots: %d\n", len(offsets))
	fmt.Fprintf(out, "scratch bytes: %d\n", scratchBytes)
}
