// Command reconcile runs one mirror sweep against the configured database
// and chain node, then exits. Use it to drain a backlog by hand or to retry
// stalled entries after an outage.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"
	"github.com/schollz/progressbar/v3"

	"trust-fund-service/conf"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/models/dao"
	"trust-fund-service/node"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/mirror_service"
	"trust-fund-service/service/project_service"
)

type options struct {
	Env     string `short:"e" long:"env" default:"loc" description:"Environment: loc/testnet/mainnet/example"`
	Config  string `short:"c" long:"config" description:"Config file, overrides the environment default"`
	Stalled bool   `long:"stalled" description:"Also retry stalled entries"`
	Verbose bool   `short:"v" long:"verbose" description:"Log every attempt"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	env, err := conf.ParseEnvironment(opts.Env)
	if err != nil {
		return err
	}
	conf.SystemEnvironmentEnum = env
	conf.ConfigFile = opts.Config
	if err := conf.InitConfig(); err != nil {
		return err
	}
	cfg := conf.Cfg

	backend := slog.NewBackend(os.Stderr)
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	for tag, use := range map[string]func(slog.Logger){
		"MIRR": mirror_service.UseLogger,
		"DATA": database.UseLogger,
		"NODE": node.UseLogger,
	} {
		l := backend.Logger(tag)
		l.SetLevel(level)
		use(l)
	}
	dao.UseLogger(backend.Logger("DATA"))

	if err := openDatabase(cfg.Database); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.DB.Close()

	chain := node.NewClient(cfg.Chain.RpcUrl, cfg.Secrets.ChainRpcToken,
		time.Duration(cfg.Chain.TimeoutSeconds)*time.Second)
	ledger := ledger_service.NewLedgerService(database.DB)
	projects := project_service.NewProjectService(database.DB, ledger, model.VoteParams{
		QuorumPercentage: cfg.Vote.QuorumPercentage,
		PassPercentage:   cfg.Vote.PassPercentage,
	})
	mirror := mirror_service.NewMirrorService(database.DB, chain, mirror_service.Options{
		MaxAttempts:    cfg.Mirror.MaxAttempts,
		BatchSize:      cfg.Mirror.BatchSize,
		VerifyReceipts: cfg.Chain.VerifyReceipts,
	})
	mirror.RegisterAppliers(ledger, projects)

	ctx := context.Background()
	status, err := mirror.Status(ctx)
	if err != nil {
		return err
	}
	total := status.Backlog.Pending
	if opts.Stalled {
		total += status.Backlog.Stalled
	}
	if total > int64(cfg.Mirror.BatchSize) {
		total = int64(cfg.Mirror.BatchSize)
	}
	if total == 0 {
		fmt.Println("Mirror is up to date")
		return nil
	}
	if status.ChainError != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", status.ChainError)
	}

	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Reconciling mirror"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	rep, err := mirror.Reconcile(ctx, opts.Stalled, func(*model.MirrorWrite) {
		bar.Add(1)
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Println(rep)
	return nil
}

func openDatabase(c conf.DatabaseConfig) error {
	dbType := database.DBType(c.Type)
	switch dbType {
	case database.DBTypePebble:
		return database.InitDatabase(dbType, &database.PebbleConfig{DataDir: c.DataDir})
	case database.DBTypeSQLite, database.DBTypeMySQL:
		return database.InitDatabase(dbType, &database.SQLConfig{
			DSN:          c.Dsn,
			MaxOpenConns: c.MaxOpenConns,
			MaxIdleConns: c.MaxIdleConns,
		})
	}
	return fmt.Errorf("unsupported database type: %s", dbType)
}
