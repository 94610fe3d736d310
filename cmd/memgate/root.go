package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// execute runs the command line in args. Resources set up by the command are
// released even when it fails.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root, a := newRootCmd(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

func newRootCmd(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "memgate",
		Short: "memgate - physical memory introspection",
		Long: `memgate reads and writes the physical memory of machines, virtual machines
and memory snapshots through pluggable connectors.

Connectors are linked into the binary or loaded from plugin files found on
the plugin search path (MEMGATE_PLUGIN_PATH, ~/.local/lib/memgate,
/usr/local/lib/memgate, /usr/lib/memgate and the executable's directory).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "Path to a YAML configuration file")
	pf.StringSliceVar(&a.flags.pluginPaths, "plugin-path", nil, "Plugin directories or files, replacing the search path")
	pf.CountVarP(&a.flags.verbosity, "verbose", "v", "Increase log verbosity (-v warn, -vv info, -vvv debug, -vvvv trace)")
	pf.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.BoolVar(&a.flags.trace, "trace", false, "Export trace spans to stderr")
	pf.IntVar(&a.flags.cachePages, "cache-pages", 0, "Wrap connectors in a page cache of this many pages")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "memgate v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(
		newListCmd(a),
		newInfoCmd(a),
		newReadCmd(a),
		newWriteCmd(a),
		newDumpCmd(a),
	)
	return root, a
}
