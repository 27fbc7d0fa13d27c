package commands

import (
	"github.com/openrumor/veracity/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for Veracity
var RootCmd = &cobra.Command{
	Use:              "veracity",
	Short:            "veracity claim verification",
	TraverseChildren: true,
}
