package app

import (
	"encoding/json"
	nativeerrors "errors"
	"fmt"
	"github.com/gobuffalo/nulls"
	"github.com/joho/godotenv"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/gatekeeping"
	"github.com/lefinal/rally-server/ws"
	"go.uber.org/zap/zapcore"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Role decides which components an App runs.
type Role string

const (
	// RoleGameHost runs the match registry and simulation.
	RoleGameHost Role = "gamehost"
	// RoleMatchmaker runs the matchmaking orchestrator and dials a game host.
	RoleMatchmaker Role = "matchmaker"
	// RoleAll runs both with the matchmaker dialing the local game host.
	RoleAll Role = "all"
)

func (r Role) runsGameHost() bool {
	return r == RoleGameHost || r == RoleAll
}

func (r Role) runsMatchmaker() bool {
	return r == RoleMatchmaker || r == RoleAll
}

// DefaultPort is the port being served on if nothing else is configured.
const DefaultPort = 8080

// LogConfig is the configuration for logging.
type LogConfig struct {
	// StdoutLogLevel is the minimum level for logging to stdout.
	StdoutLogLevel zapcore.Level `json:"stdout_log_level"`
	// HighPriorityOutput is the optional file for warnings and errors.
	HighPriorityOutput nulls.String `json:"high_priority_output"`
	// DebugOutput is the optional file for all log entries.
	DebugOutput nulls.String `json:"debug_output"`
	// MaxSize in megabytes before log files are rotated.
	MaxSize int `json:"max_size"`
	// KeepDays is the amount of days to keep rotated log files for.
	KeepDays int `json:"keep_days"`
	// SystemDebugStatsInterval is the optional interval in seconds for logging
	// runtime stats.
	SystemDebugStatsInterval nulls.Int `json:"system_debug_stats_interval"`
}

// MatchmakingConfig is the configuration for the matchmaker.
type MatchmakingConfig struct {
	// RoundDelayMS is the delay before each tournament round in milliseconds.
	RoundDelayMS int `json:"round_delay_ms"`
	// RankTolerance is the optional maximum rank gap within a lobby.
	RankTolerance nulls.Int `json:"rank_tolerance"`
}

// Config is the configuration needed in order to boot an App.
type Config struct {
	Role Role `json:"role"`
	// Port to serve http and websocket connections on.
	Port int `json:"port"`
	// LobbyID and LobbyPass are the credentials of the control channel.
	LobbyID   string `json:"lobby_id"`
	LobbyPass string `json:"lobby_pass"`
	// MaxConnectionsPerIP is the admission guard ceiling.
	MaxConnectionsPerIP int `json:"max_connections_per_ip"`
	// GameHostURL is the websocket url the matchmaker dials. Defaults to the
	// local game host for RoleAll.
	GameHostURL nulls.String `json:"game_host_url"`
	// DBConn is the optional connection string for the PostgreSQL database. If
	// not set, progression is kept in memory.
	DBConn nulls.String `json:"db_conn"`
	// RedisURL is the optional url of the Redis server for presence.
	RedisURL nulls.String `json:"redis_url"`
	// MQTTAddr is the optional address of the MQTT broker for the match feed.
	MQTTAddr nulls.String `json:"mqtt_addr"`
	// AllowedOrigins for CORS.
	AllowedOrigins []string `json:"allowed_origins"`
	// TrustedProxies are the networks of reverse proxies whose X-Forwarded-For
	// header is used for determining client ips.
	TrustedProxies []string `json:"trusted_proxies"`
	// GameConfigFile is an optional JSON file holding the game config. If set,
	// it replaces the game section.
	GameConfigFile nulls.String      `json:"game_config_file"`
	Game           games.Config      `json:"game"`
	Matchmaking    MatchmakingConfig `json:"matchmaking"`
	Log            LogConfig         `json:"log"`
}

// DefaultConfig is the Config that is used for unset values.
func DefaultConfig() Config {
	return Config{
		Role:                RoleAll,
		Port:                DefaultPort,
		MaxConnectionsPerIP: gatekeeping.DefaultMaxConnectionsPerIP,
		Game:                games.DefaultConfig(),
		Log: LogConfig{
			StdoutLogLevel: zapcore.InfoLevel,
			MaxSize:        100,
			KeepDays:       7,
		},
	}
}

// ServeAddr is the address to listen on.
func (c Config) ServeAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// HostURL is the game host url the matchmaker dials.
func (c Config) HostURL() string {
	if c.GameHostURL.Valid {
		return c.GameHostURL.String
	}
	return fmt.Sprintf("ws://127.0.0.1:%d/ws", c.Port)
}

// LoadConfig loads the Config from the given JSON file and applies
// environment overrides. A missing file is only an error if required is set.
// Variables from an optional .env file are loaded first.
func LoadConfig(filename string, required bool) (Config, error) {
	c := DefaultConfig()
	raw, err := os.ReadFile(filename)
	switch {
	case err == nil:
		err = json.Unmarshal(raw, &c)
		if err != nil {
			return Config{}, errors.NewJSONError(err, "parse config", true)
		}
	case nativeerrors.Is(err, fs.ErrNotExist) && !required:
	default:
		return Config{}, errors.FromErr("read config file", errors.ErrFatal, err, errors.Details{"filename": filename})
	}
	err = godotenv.Load()
	if err != nil && !nativeerrors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.FromErr("load .env", errors.ErrFatal, err, nil)
	}
	err = applyEnv(&c, os.LookupEnv)
	if err != nil {
		return Config{}, errors.Wrap(err, "apply environment", nil)
	}
	if c.GameConfigFile.Valid {
		c.Game, err = games.LoadConfig(c.GameConfigFile.String)
		if err != nil {
			return Config{}, errors.Wrap(err, "load game config", errors.Details{"filename": c.GameConfigFile.String})
		}
	}
	return c, nil
}

// applyEnv overrides config values with set environment variables.
func applyEnv(c *Config, lookup func(key string) (string, bool)) error {
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && v != "" {
			*target = v
		}
	}
	nullStr := func(key string, target *nulls.String) {
		if v, ok := lookup(key); ok && v != "" {
			*target = nulls.NewString(v)
		}
	}
	integer := func(key string, target *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindInvalidData,
				Err:     err,
				Message: fmt.Sprintf("invalid integer for %s", key),
				Details: errors.Details{"value": v},
			}
		}
		*target = i
		return nil
	}
	if err := integer("PORT", &c.Port); err != nil {
		return err
	}
	if err := integer("MAX_CONNECTIONS_PER_IP", &c.MaxConnectionsPerIP); err != nil {
		return err
	}
	str("LOBBY_ID", &c.LobbyID)
	str("LOBBY_PASS", &c.LobbyPass)
	if v, ok := lookup("ROLE"); ok && v != "" {
		c.Role = Role(strings.ToLower(v))
	}
	nullStr("GAME_HOST_URL", &c.GameHostURL)
	nullStr("DB_CONN", &c.DBConn)
	nullStr("REDIS_URL", &c.RedisURL)
	nullStr("MQTT_ADDR", &c.MQTTAddr)
	nullStr("GAME_CONFIG_FILE", &c.GameConfigFile)
	if v, ok := lookup("TRUSTED_PROXIES"); ok && v != "" {
		c.TrustedProxies = strings.Split(v, ",")
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		err := c.Log.StdoutLogLevel.UnmarshalText([]byte(v))
		if err != nil {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindInvalidData,
				Err:     err,
				Message: "invalid log level",
				Details: errors.Details{"value": v},
			}
		}
	}
	return nil
}

// ValidateConfig makes sure that the given Config is valid.
func ValidateConfig(c Config) error {
	problems := make([]string, 0)
	switch c.Role {
	case RoleGameHost, RoleMatchmaker, RoleAll:
	default:
		problems = append(problems, fmt.Sprintf("unknown role %q", c.Role))
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port must be within 1-65535 but was %d", c.Port))
	}
	if c.LobbyID == "" {
		problems = append(problems, "missing lobby id")
	}
	if c.LobbyPass == "" {
		problems = append(problems, "missing lobby pass")
	}
	if c.MaxConnectionsPerIP <= 0 {
		problems = append(problems, "max connections per ip must be positive")
	}
	if c.Role == RoleMatchmaker && !c.GameHostURL.Valid {
		problems = append(problems, "matchmaker role requires a game host url")
	}
	if c.Matchmaking.RoundDelayMS < 0 {
		problems = append(problems, "round delay must not be negative")
	}
	if c.Matchmaking.RankTolerance.Valid && c.Matchmaking.RankTolerance.Int < 0 {
		problems = append(problems, "rank tolerance must not be negative")
	}
	if c.Log.SystemDebugStatsInterval.Valid && c.Log.SystemDebugStatsInterval.Int <= 0 {
		problems = append(problems, "system debug stats interval must be positive")
	}
	if _, err := ws.ParseTrustedProxies(c.TrustedProxies); err != nil {
		problems = append(problems, fmt.Sprintf("invalid trusted proxies: %s", errors.Prettify(err)))
	}
	if len(problems) > 0 {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidData,
			Message: fmt.Sprintf("invalid config: %s", strings.Join(problems, ", ")),
			Details: errors.Details{"problems": problems},
		}
	}
	if c.Role.runsGameHost() {
		err := c.Game.Validate()
		if err != nil {
			return errors.Wrap(err, "validate game config", nil)
		}
	}
	return nil
}
