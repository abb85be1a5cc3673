package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/output"
	"github.com/nethalo/pgreorg/internal/session"
)

var connectCmd = &cobra.Command{
	Use:          "connect",
	Short:        "Test connection and show server info",
	SilenceUsage: true, // Don't show usage on errors
	Long: `Connect to a PostgreSQL server, report its version, list the
connectable databases, and show whether the reorg extension's
metadata schema is installed in the target database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		connCfg := connectionConfig()
		connCfg.Database = viper.GetString("dbname")

		if connCfg.Password == "" {
			connCfg.Password = session.PromptPassword()
		}

		sess, err := session.Connect(ctx, connCfg)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		defer sess.Close()

		verNum, err := sess.ServerVersionNum(ctx)
		if err != nil {
			return fmt.Errorf("querying server version: %w", err)
		}

		databases, err := catalog.ListDatabases(ctx, sess)
		if err != nil {
			return fmt.Errorf("listing databases: %w", err)
		}

		_, err = catalog.ListTargets(ctx, sess, catalog.Selector{})
		installed := true
		if err != nil {
			if errors.Is(err, catalog.ErrExtensionAbsent) {
				installed = false
			} else {
				return fmt.Errorf("probing reorg extension: %w", err)
			}
		}

		info := output.ConnectionInfo{
			Address:              fmt.Sprintf("%s:%d", connCfg.Host, connCfg.Port),
			ServerVersion:        fmt.Sprintf("%d", verNum),
			ExtensionInstalled:   installed,
			ConnectableDatabases: databases,
		}

		renderer := output.NewRenderer(viper.GetString("format"), os.Stdout)
		renderer.RenderConnection(info)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
