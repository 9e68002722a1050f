package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flags "github.com/jessevdk/go-flags"

	"trust-fund-service/conf"
	"trust-fund-service/controller"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/node"
	"trust-fund-service/service/dashboard_service"
	"trust-fund-service/service/identity_service"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/mirror_service"
	"trust-fund-service/service/project_service"
	"trust-fund-service/service/storage_service"
)

// options command line options
type options struct {
	Env      string `short:"e" long:"env" default:"loc" description:"Environment: loc/testnet/mainnet/example"`
	Config   string `short:"c" long:"config" description:"Config file, overrides the environment default"`
	LogLevel string `long:"loglevel" description:"Log level for all subsystems, overrides log.level"`
}

// @title           Trust Fund Service API
// @version         1.0
// @description     Milestone-based crowdfunding with an off-chain mirror of chain state
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:7290
// @BasePath  /

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name auth_token

// @schemes https http

func main() {
	srv, mirror := initAll()
	defer closeAll()

	if err := mirror.StartReconciler(conf.Cfg.Mirror.SweepSpec); err != nil {
		fatalf("Failed to start mirror reconciler: %v", err)
	}
	log.Infof("Mirror reconciler started (%s)", conf.Cfg.Mirror.SweepSpec)

	go startServer(srv)

	waitForShutdown()
	log.Infof("Shutting down...")

	mirror.Stop()
	shutdownServer(srv)

	log.Infof("Server exited")
}

// initAll loads configuration and builds every component
func initAll() (*http.Server, *mirror_service.MirrorService) {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	env, err := conf.ParseEnvironment(opts.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conf.SystemEnvironmentEnum = env
	conf.ConfigFile = opts.Config

	if err := conf.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}
	cfg := conf.Cfg

	if cfg.Log.Dir != "" {
		initLogRotator(filepath.Join(cfg.Log.Dir, "trust-fund.log"))
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	setLogLevels(level)
	gin.DefaultWriter = logWriter{}
	gin.DefaultErrorWriter = logWriter{}

	log.Infof("Configuration loaded: env=%s, net=%s, port=%s", env, cfg.Net, cfg.Server.Port)

	if err := initDatabase(cfg.Database); err != nil {
		fatalf("Failed to initialize database: %v", err)
	}

	chain := node.InitClient(cfg.Chain.RpcUrl, cfg.Secrets.ChainRpcToken,
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

	services := &controller.Services{
		Identity: identity_service.NewIdentityService(database.DB, identity_service.Options{
			Secret: []byte(cfg.Secrets.JwtSecret),
			Issuer: cfg.Auth.Issuer,
			TTL:    cfg.Auth.TokenTTL,
		}),
		Ledger:    ledger,
		Projects:  projects,
		Dashboard: dashboard_service.NewDashboardService(database.DB, ledger),
		Mirror:    mirror,
		Storage: storage_service.NewStorageService(storage_service.Options{
			PinURL:   cfg.Ipfs.PinUrl,
			Gateway:  cfg.Ipfs.Gateway,
			JWT:      cfg.Secrets.PinataJwt,
			MaxBytes: int64(cfg.Server.MaxUploadMB) << 20,
		}),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: controller.SetupRouter(cfg, services),
	}
	return srv, mirror
}

// exit is replaced in tests.
var exit = os.Exit

// fatalf logs at critical level and exits after closeAll, since deferred
// calls do not run on exit.
func fatalf(format string, args ...interface{}) {
	log.Criticalf(format, args...)
	closeAll()
	exit(1)
}

// closeAll closes the database and flushes the log file.
func closeAll() {
	if database.DB != nil {
		database.DB.Close()
		database.DB = nil
	}
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
}

// initDatabase opens the configured storage backend
func initDatabase(c conf.DatabaseConfig) error {
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
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// startServer start HTTP server
func startServer(srv *http.Server) {
	log.Infof("API service listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatalf("Failed to start server: %v", err)
	}
}

// waitForShutdown wait for shutdown signal
func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// shutdownServer gracefully shutdown server
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("Server forced to shutdown: %v", err)
	}
}
