// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iTwin/presentation-hierarchies/internal/build"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with HIERARCHIES, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(strings.ToUpper(build.ProjectName))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/hierarchies", "$HOME/.hierarchies", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "hierarchies",
		Short: "Build presentation hierarchies from relational instance data",
		Long: `Build presentation hierarchies from relational instance data.

Hierarchy levels are described by rules files that map parent nodes to instance queries and
generic nodes. The resulting nodes are grouped, sorted and filtered before they are printed.`,
		SilenceUsage: true,
	}
}
