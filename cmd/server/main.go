//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/himanishpuri/GazeCaptcha/internal/config"
	"github.com/himanishpuri/GazeCaptcha/internal/live"
	"github.com/himanishpuri/GazeCaptcha/internal/videoproxy"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha"
	"github.com/himanishpuri/GazeCaptcha/pkg/logger"
	gormlogger "gorm.io/gorm/logger"
)

var (
	configDir      string
	addr           string
	dbPath         string
	staticDir      string
	allowedOrigins string
)

func init() {
	flag.StringVar(&configDir, "config", getEnvOrDefault("GAZE_CONFIG_DIR", "."), "Directory holding config.yaml and .env")
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	flag.StringVar(&dbPath, "db", "", "Database DSN or SQLite path (overrides database.dsn)")
	flag.StringVar(&staticDir, "static", "", "Directory served at / (overrides server.static_dir)")
	flag.StringVar(&allowedOrigins, "origins", "", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	loader, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := loader.Config()
	applyFlags(cfg)

	appLog := initLogger(cfg.Logging)
	defer appLog.Sync()
	if f := loader.ConfigFile(); f != "" {
		appLog.Infof("Configuration loaded from %s", f)
	}

	service, err := gazecaptcha.NewService(
		gazecaptcha.WithDriver(cfg.Database.Driver, cfg.Database.DSN),
		gazecaptcha.WithLogger(appLog),
		gazecaptcha.WithSQLLogger(logger.NewGormLogger(appLog, parseGormLevel(cfg.Database.LogLevel))),
		gazecaptcha.WithMatcherParams(cfg.Matcher),
		gazecaptcha.WithToggleRadius(cfg.Session.ToggleRadius),
		gazecaptcha.WithPrecision(cfg.Session.Precision),
		gazecaptcha.WithSeed(cfg.Session.Seed),
		gazecaptcha.WithPersistRecordings(cfg.Session.Persist),
	)
	if err != nil {
		appLog.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	loader.Watch(appLog.Zap().Named("config"), func(next *config.Config) {
		service.SetMatcherParams(next.Matcher)
		if lvl, ok := logger.ParseLevel(next.Logging.Level); ok {
			appLog.SetLevel(lvl)
		}
	})

	proxyOpts := []videoproxy.Option{videoproxy.WithClient(videoproxy.NewTimeoutClient(cfg.Proxy.Timeout))}
	if cfg.Proxy.YtDLP {
		proxyOpts = append(proxyOpts, videoproxy.WithResolver(videoproxy.NewCachingResolver(videoproxy.YtDLP(), cfg.Proxy.CacheTTL)))
	}
	proxy := videoproxy.New(appLog.Zap().Named("proxy"), proxyOpts...)
	liveHandler := live.NewHandler(service, appLog.Zap().Named("live"), cfg.Server.CORSOrigins)

	serverConfig := &ServerConfig{
		Addr:           cfg.Server.Addr,
		DBDriver:       cfg.Database.Driver,
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, serverConfig, appLog, proxy, liveHandler)
	if err := server.Start(ctx); err != nil {
		appLog.Fatalf("Server failed: %v", err)
	}
}

// applyFlags lets explicit command-line flags win over the loaded config.
func applyFlags(cfg *config.Config) {
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Database.DSN = dbPath
	}
	if staticDir != "" {
		cfg.Server.StaticDir = staticDir
	}
	if allowedOrigins != "" {
		var origins []string
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
}

func initLogger(lc config.LoggingConfig) *logger.Logger {
	lcfg := logger.DefaultConfig()
	if lvl, ok := logger.ParseLevel(lc.Level); ok {
		lcfg.Level = lvl
	}
	lcfg.JSON = lc.JSON
	lcfg.File = lc.File
	lcfg.MaxSizeMB = lc.MaxSize
	lcfg.MaxBackups = lc.MaxBackups
	lcfg.MaxAgeDays = lc.MaxAge
	return logger.Init(lcfg)
}

func parseGormLevel(s string) gormlogger.LogLevel {
	switch strings.ToLower(s) {
	case "error":
		return gormlogger.Error
	case "warn", "warning":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}
