// Command cdbg is an interactive, ptrace/DWARF-based source-level
// debugger for compiled C programs on Linux/x86_64.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwarfdbg/cdbg/debugger"
	"github.com/dwarfdbg/cdbg/repl"
)

func main() {
	var progArgs []string

	root := &cobra.Command{
		Use:   "cdbg <executable>",
		Short: "an interactive source-level debugger for compiled C programs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], progArgs)
		},
		SilenceUsage: true,
	}
	root.Flags().StringArrayVar(&progArgs, "args", nil, "arguments forwarded to the traced program")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cdbg:", err)
		os.Exit(1)
	}
}

func run(path string, progArgs []string) error {
	argv := append([]string{path}, progArgs...)
	sess, err := debugger.New(path, argv)
	if err != nil {
		return err
	}
	defer sess.Kill()

	r, err := repl.New(sess)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Run()
}
