package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/iTwin/presentation-hierarchies/cmd/util"
	"github.com/iTwin/presentation-hierarchies/pkg/query/sqlexec"
)

const versionFlag = "version"

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the demo schema migrations against the datastore",
		Long:  `The migrate command creates or updates the instances schema and demo data the hierarchies are read from.`,
		RunE:  runMigration,
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindConfigFlags(cmd)
			util.MustBindPFlag(versionFlag, cmd.Flags().Lookup(versionFlag))
		},
	}

	flags := cmd.Flags()
	addConfigFlags(flags)
	flags.Int64(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")

	// NOTE: if you add a new flag here, add the binding in PreRun

	return cmd
}

func runMigration(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := newCommandContext()
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	db, err := c.openDatastore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize datastore connection: %w", err)
	}
	defer db.Close()

	targetVersion := viper.GetInt64(versionFlag)
	if targetVersion == 0 {
		c.Logger.Info("running all migrations", zap.String("engine", c.Config.Datastore.Engine))
	} else {
		c.Logger.Info("migrating", zap.String("engine", c.Config.Datastore.Engine), zap.Int64("version", targetVersion))
	}

	version, err := sqlexec.Migrate(ctx, db, c.Config.Datastore.Engine, targetVersion)
	if err != nil {
		return err
	}

	c.Logger.Info("migration done", zap.Int64("version", version))
	return nil
}
