package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nethalo/pgreorg/internal/catalog"
	"github.com/nethalo/pgreorg/internal/cleanup"
	"github.com/nethalo/pgreorg/internal/dispatch"
	"github.com/nethalo/pgreorg/internal/output"
	"github.com/nethalo/pgreorg/internal/reorg"
	"github.com/nethalo/pgreorg/internal/session"
	"github.com/nethalo/pgreorg/internal/telemetry"
)

var reorgCmd = &cobra.Command{
	Use:          "reorg [database]",
	Short:        "Reorganize tables online",
	SilenceUsage: true, // Don't show usage on errors
	Long: `Rebuild a table's physical storage and indexes online, replaying
concurrent writes through a change log and swapping in the new storage
under a brief access-exclusive lock.

With no -t/--table, every table in the target database that declares a
cluster key is reorganized. With -a/--all, every connectable database is
visited in turn; -t/--table is disallowed in that mode.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		table, _ := cmd.Flags().GetString("table")
		noOrder, _ := cmd.Flags().GetBool("no-order")
		orderBy, _ := cmd.Flags().GetString("order-by")
		noAnalyze, _ := cmd.Flags().GetBool("no-analyze")
		lockWait, _ := cmd.Flags().GetDuration("lock-wait-timeout")

		if all && table != "" {
			return fmt.Errorf("--table cannot be combined with --all")
		}
		if noOrder && orderBy != "" {
			return fmt.Errorf("--no-order cannot be combined with --order-by")
		}

		database := viper.GetString("dbname")
		if len(args) > 0 {
			database = args[0]
		}
		if !all && database == "" {
			return fmt.Errorf("specify a database (positional argument or -d/--dbname), or use --all")
		}

		connCfg := connectionConfig()
		if connCfg.Password == "" {
			connCfg.Password = session.PromptPassword()
		}

		log := telemetry.New(os.Stderr, viper.GetBool("verbose"), viper.GetBool("quiet"))

		mode := reorg.ModeCluster
		switch {
		case noOrder:
			mode = reorg.ModeNoOrder
		case orderBy != "":
			mode = reorg.ModeCustom
		}
		opts := reorg.Options{
			Mode:            mode,
			OrderBy:         orderBy,
			SkipAnalyze:     noAnalyze,
			LockWaitTimeout: lockWait,
		}

		ctx := cmd.Context()

		// SIGINT/SIGTERM does not cancel ctx: a cancelled context would
		// surface as an ordinary phase error and route through the normal
		// Graceful cleanup, which touches the database — exactly what must
		// be avoided once a fatal signal arrives mid-reorg. Instead the
		// handler currently in flight takes its log-only Fatal path and the
		// process exits without further database I/O.
		var activeHandler atomic.Pointer[cleanup.Handler]
		onHandler := func(h *cleanup.Handler) { activeHandler.Store(h) }

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			sig := <-sigCh
			log.Warn().Str("signal", sig.String()).Msg("reorg: interrupted, leaving transient objects for manual cleanup")
			if h := activeHandler.Load(); h != nil {
				h.Fatal()
			}
			os.Exit(1)
		}()

		connect := func(ctx context.Context, database string) (session.Session, int, error) {
			dbCfg := connCfg
			dbCfg.Database = database
			sess, err := session.Connect(ctx, dbCfg)
			if err != nil {
				return nil, 0, err
			}
			verNum, err := sess.ServerVersionNum(ctx)
			if err != nil {
				sess.Close()
				return nil, 0, err
			}
			return sess, verNum, nil
		}

		var report dispatch.Report
		var runErr error
		if all {
			adminCfg := connCfg
			adminCfg.Database = "postgres"
			adminSess, err := session.Connect(ctx, adminCfg)
			if err != nil {
				return fmt.Errorf("connecting to administrative database: %w", err)
			}
			defer adminSess.Close()

			report, runErr = dispatch.Run(ctx, adminSess, dispatch.Options{
				Connect:   connect,
				Opts:      opts,
				Selector:  catalog.Selector{OrderBy: orderBy},
				Log:       log,
				OnHandler: onHandler,
			})
		} else {
			var dbReport dispatch.DatabaseReport
			dbReport, runErr = dispatch.RunOne(ctx, database, dispatch.Options{
				Connect:   connect,
				Opts:      opts,
				Selector:  catalog.Selector{Relation: table, OrderBy: orderBy},
				Log:       log,
				OnHandler: onHandler,
			})
			report.Databases = []dispatch.DatabaseReport{dbReport}
		}

		// Render whatever progress was made even when a table failure
		// aborted the rest of the run, so the operator sees what
		// succeeded before the run stopped.
		if !viper.GetBool("quiet") {
			renderer := output.NewRenderer(viper.GetString("format"), os.Stdout)
			renderer.RenderReport(report)
		}

		if runErr != nil {
			return runErr
		}
		if reportFailed(report) {
			return fmt.Errorf("one or more tables failed to reorganize")
		}
		return nil
	},
}

func reportFailed(report dispatch.Report) bool {
	for _, db := range report.Databases {
		for _, res := range db.Results {
			if res.Failed() {
				return true
			}
		}
	}
	return false
}

func connectionConfig() session.Config {
	cfg := session.Config{
		Host:    viper.GetString("host"),
		Port:    viper.GetInt("port"),
		User:    viper.GetString("user"),
		Password: viper.GetString("password"),
		Socket:  viper.GetString("socket"),
		SSLMode: viper.GetString("sslmode"),
	}
	if cfg.Host == "" && cfg.Socket == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	return cfg
}

func init() {
	rootCmd.AddCommand(reorgCmd)
	reorgCmd.Flags().BoolP("all", "a", false, "Reorganize every connectable database")
	reorgCmd.Flags().StringP("table", "t", "", "Restrict to one table (schema-qualified)")
	reorgCmd.Flags().BoolP("no-order", "n", false, "Do not order rows (physical compaction only)")
	reorgCmd.Flags().StringP("order-by", "o", "", "Order rows by a custom column list")
	reorgCmd.Flags().BoolP("no-analyze", "Z", false, "Skip the post-reorganization ANALYZE")
	reorgCmd.Flags().Duration("lock-wait-timeout", 0, "Max time to wait for the swap lock (0 = unbounded)")
}
