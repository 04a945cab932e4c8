// File: cmd/version.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-dispatch/internal/server"
)

// Version is the application version.
// Override at build time with ldflags:
// go build -ldflags "-X github.com/xkilldash9x/scalpel-dispatch/cmd.Version=v0.2"
var Version = server.Version

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fprintln(cmd, "scalpel-dispatch", Version)
		},
	}
}
