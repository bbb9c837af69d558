package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the toolkit version, overridable at build time with
// -ldflags "-X .../commands.Version=...".
var Version = "0.1.0"

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("openrmt %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
