package app

import (
	"context"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/rally-server/debugstats"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/gamehost"
	"github.com/lefinal/rally-server/gatekeeping"
	"github.com/lefinal/rally-server/hostlink"
	"github.com/lefinal/rally-server/logging"
	"github.com/lefinal/rally-server/matchfeed"
	"github.com/lefinal/rally-server/matchmaking"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/metrics"
	"github.com/lefinal/rally-server/portal"
	"github.com/lefinal/rally-server/presence"
	"github.com/lefinal/rally-server/registry"
	"github.com/lefinal/rally-server/services"
	"github.com/lefinal/rally-server/store"
	"github.com/lefinal/rally-server/web_server"
	"github.com/lefinal/rally-server/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
	"time"
)

// presenceKeyPrefix is the prefix for all presence keys in Redis.
const presenceKeyPrefix = "rally"

// healthCheckTimeout is the timeout for pinging external services in health
// checks.
const healthCheckTimeout = time.Second

// App is a complete rally server instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context is done.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := setupLogging(app.config.Log)
	logging.ApplyToGlobalLoggers(logger)
	defer func() {
		_ = logger.Sync()
	}()
	// Boot.
	err = app.boot(ctx, logger)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logging.AppLogger, err)
		return err
	}
	return nil
}

// components holds everything that is set up during boot.
type components struct {
	services     appServices
	guard        *gatekeeping.Guard
	registry     *registry.Registry
	gameHub      *ws.Hub
	link         *hostlink.Link
	orchestrator *matchmaking.Orchestrator
	mmHub        *ws.Hub
	feed         *matchfeed.Feed
	healthChecks map[string]web_server.HealthCheck
	closers      []func()
}

func (app *App) boot(ctx context.Context, logger *zap.Logger) error {
	logging.AppLogger.Warn("booting up", zap.String("role", string(app.config.Role)))
	c := &components{
		services:     make(appServices),
		healthChecks: make(map[string]web_server.HealthCheck),
	}
	defer func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			c.closers[i]()
		}
	}()
	c.guard = gatekeeping.NewGuard(logger.Named("gatekeeping"), app.config.MaxConnectionsPerIP)
	// Match feed.
	if app.config.MQTTAddr.Valid {
		err := app.setupFeed(logger, c)
		if err != nil {
			return errors.Wrap(err, "setup match feed", nil)
		}
	}
	if app.config.Role.runsGameHost() {
		app.setupGameHost(logger, c)
	}
	if app.config.Role.runsMatchmaker() {
		err := app.setupMatchmaker(ctx, logger, c)
		if err != nil {
			return errors.Wrap(err, "setup matchmaker", nil)
		}
	}
	// Debug stats.
	debugStats, err := debugstats.NewService(logger.Named("debug-stats"), debugstats.Config{
		IsEnabled: app.config.Log.SystemDebugStatsInterval.Valid,
		Interval:  time.Duration(app.config.Log.SystemDebugStatsInterval.Int) * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "new debug stats service", nil)
	}
	c.services["debug-stats"] = debugStats
	// Web server.
	err = app.setupWebServer(ctx, logger, c)
	if err != nil {
		return errors.Wrap(err, "setup web server", nil)
	}
	logging.AppLogger.Debug("setup completed. booting...")
	err = c.services.run(ctx, logger.Named("services"))
	if err != nil {
		return errors.Wrap(err, "run services", nil)
	}
	logging.AppLogger.Warn("shut down")
	return nil
}

// setupFeed creates the MQTT portal and the match feed. Removal requests are
// only accepted when the game host runs in this process.
func (app *App) setupFeed(logger *zap.Logger, c *components) error {
	base, err := portal.NewBase(logging.MQTTLogger, portal.Config{MQTTAddr: app.config.MQTTAddr.String})
	if err != nil {
		return errors.Wrap(err, "new portal base", nil)
	}
	c.services["portal"] = services.Func(base.Open)
	var remover matchfeed.Remover
	if app.config.Role.runsGameHost() {
		remover = matchfeed.RemoverFunc(func(id messages.MatchID, force bool, isTimeout bool) error {
			return c.registry.RemoveMatch(id, force, isTimeout)
		})
	}
	c.feed = matchfeed.NewFeed(logger.Named("match-feed"), base.NewPortal("match-feed"), remover)
	c.services["match-feed"] = c.feed
	return nil
}

func (app *App) setupGameHost(logger *zap.Logger, c *components) {
	var notifier registry.Notifier
	if c.feed != nil {
		notifier = c.feed
	}
	c.registry = registry.NewRegistry(logger.Named("registry"), registry.Config{
		ID:       app.config.LobbyID,
		Password: app.config.LobbyPass,
		Game:     app.config.Game,
	}, notifier)
	c.services["registry"] = c.registry
	host := gamehost.NewHost(logger.Named("game-host"), c.registry)
	c.gameHub = ws.NewHub(logging.WSLogger.Named("game"), c.guard, host)
	c.services["game-hub"] = c.gameHub
}

func (app *App) setupMatchmaker(ctx context.Context, logger *zap.Logger, c *components) error {
	// Progression.
	var progress matchmaking.ProgressStore
	if app.config.DBConn.Valid {
		logging.DBLogger.Debug("connecting to database")
		db, err := connectDB(ctx, logging.DBLogger, app.config.DBConn.String, defaultMaxDBConnections)
		if err != nil {
			return errors.Wrap(err, "connect database", nil)
		}
		c.closers = append(c.closers, db.Close)
		c.healthChecks["database"] = pingDB(db)
		logging.DBLogger.Debug("database ready")
		progress = store.NewMall(logging.DBLogger.Named("mall"), db)
	} else {
		logging.AppLogger.Warn("no database configured. progression will be kept in memory")
		progress = store.NewMemory()
	}
	// Presence.
	var presenceStore matchmaking.PresenceStore = presence.NopStore{}
	if app.config.RedisURL.Valid {
		client, err := presence.Connect(ctx, app.config.RedisURL.String)
		if err != nil {
			return errors.Wrap(err, "connect redis", nil)
		}
		c.closers = append(c.closers, func() { _ = client.Close() })
		c.healthChecks["presence"] = pingRedis(client)
		presenceStore = presence.NewRedisStore(client, presenceKeyPrefix, presence.DefaultTTL)
	}
	// Game host link.
	c.link = hostlink.NewLink(logger.Named("host-link"), hostlink.Config{
		URL:       app.config.HostURL(),
		LobbyID:   app.config.LobbyID,
		LobbyPass: app.config.LobbyPass,
	}, hostlink.NewWebsocketDialer())
	c.services["host-link"] = c.link
	c.healthChecks["game-host-link"] = c.link.Connected
	// Orchestrator.
	config := matchmaking.Config{
		RoundDelay: time.Duration(app.config.Matchmaking.RoundDelayMS) * time.Millisecond,
	}
	if app.config.Matchmaking.RankTolerance.Valid {
		config.Policy = matchmaking.RankTolerance(app.config.Matchmaking.RankTolerance.Int)
	}
	var notifier matchmaking.Notifier
	if c.feed != nil {
		notifier = c.feed
	}
	c.orchestrator = matchmaking.NewOrchestrator(logger.Named("matchmaking"), config, c.link, progress, presenceStore, notifier)
	c.services["orchestrator"] = c.orchestrator
	handler := matchmaking.NewHandler(logger.Named("matchmaking-handler"), c.orchestrator)
	c.mmHub = ws.NewHub(logging.WSLogger.Named("matchmaking"), c.guard, handler)
	c.services["matchmaking-hub"] = c.mmHub
	return nil
}

func (app *App) setupWebServer(ctx context.Context, logger *zap.Logger, c *components) error {
	sources := metrics.Sources{
		Connections: make(map[string]metrics.ConnectionCounter),
		Admission:   c.guard,
	}
	if c.registry != nil {
		sources.Registry = c.registry
		sources.Connections["game"] = c.gameHub
	}
	if c.orchestrator != nil {
		sources.Orchestrator = c.orchestrator
		sources.Connections["matchmaking"] = c.mmHub
	}
	exporter, err := metrics.NewExporter(sources)
	if err != nil {
		return errors.Wrap(err, "new metrics exporter", nil)
	}
	webServer, err := web_server.NewWebServer(logging.WebServerLogger, web_server.Config{
		ServeAddr:      app.config.ServeAddr(),
		WriteTimeout:   web_server.DefaultWriteTimeout,
		ReadTimeout:    web_server.DefaultReadTimeout,
		AllowedOrigins: app.config.AllowedOrigins,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	proxies, err := ws.ParseTrustedProxies(app.config.TrustedProxies)
	if err != nil {
		return errors.Wrap(err, "parse trusted proxies", nil)
	}
	webServer.PopulateRoutes(ctx, web_server.Routes{
		GameHub:        c.gameHub,
		MatchmakingHub: c.mmHub,
		Metrics:        exporter.Handler(),
		HealthChecks:   c.healthChecks,
		TrustedProxies: proxies,
	})
	c.services["web-server"] = webServer
	return nil
}

func pingDB(db *pgxpool.Pool) web_server.HealthCheck {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		return db.Ping(ctx) == nil
	}
}

func pingRedis(client *redis.Client) web_server.HealthCheck {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		return client.Ping(ctx).Err() == nil
	}
}

func setupLogging(config LogConfig) *zap.Logger {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel && level < zap.ErrorLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	return zap.New(zapcore.NewTee(cores...))
}
