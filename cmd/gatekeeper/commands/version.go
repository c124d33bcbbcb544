package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/version"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of Gatekeeper",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s/%s\n", version.Get(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
