package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/snapcircle/dmsocket/internal/build"

	"github.com/spf13/cobra"
)

func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "dmsocket version information",
		Long:  `Print the version information of dmsocket`,
		Run: func(cmd *cobra.Command, args []string) {
			version(os.Stdout)
		},
	}
}

func version(w io.Writer) {
	_, _ = fmt.Fprintf(w, "%s v%s (Go version: %s)\n", build.ClientName, build.Version, runtime.Version())
}
