// chunkinspect is a small operator CLI for poking at chunk files on
// disk without going through the broker: print a chunk's header and
// footer, or re-run the ongoing-recovery scan to find the first
// corrupt record.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flowbroker/chunkstore/cmd/chunkinspect/inspect"
	"github.com/flowbroker/chunkstore/cmd/chunkinspect/verify"
	"github.com/flowbroker/chunkstore/internal/obslog"
)

func main() {
	c := &cobra.Command{
		Use:   "chunkinspect",
		Short: "Inspect and verify chunk files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}
	c.AddCommand(inspect.Cmd)
	c.AddCommand(verify.Cmd)

	defer obslog.Sync()
	if err := c.Execute(); err != nil {
		os.Exit(1)
	}
}
