package app

import (
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/rally-server/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	c := DefaultConfig()
	c.LobbyID = "lobby"
	c.LobbyPass = "secret"
	return c
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	c := DefaultConfig()
	err := applyEnv(&c, lookupFrom(map[string]string{
		"PORT":                   "9000",
		"LOBBY_ID":               "lobby",
		"LOBBY_PASS":             "secret",
		"MAX_CONNECTIONS_PER_IP": "5",
		"ROLE":                   "GameHost",
		"DB_CONN":                "postgres://localhost/rally",
		"REDIS_URL":              "",
		"LOG_LEVEL":              "debug",
		"TRUSTED_PROXIES":        "10.0.0.0/8,192.168.0.1",
	}))
	require.NoError(t, err)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, ":9000", c.ServeAddr())
	assert.Equal(t, "lobby", c.LobbyID)
	assert.Equal(t, "secret", c.LobbyPass)
	assert.Equal(t, 5, c.MaxConnectionsPerIP)
	assert.Equal(t, RoleGameHost, c.Role)
	assert.Equal(t, nulls.NewString("postgres://localhost/rally"), c.DBConn)
	assert.False(t, c.RedisURL.Valid, "empty values should be ignored")
	assert.Equal(t, zapcore.DebugLevel, c.Log.StdoutLogLevel)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.1"}, c.TrustedProxies)
}

func TestApplyEnv_invalid(t *testing.T) {
	for _, env := range []map[string]string{
		{"PORT": "eighty"},
		{"MAX_CONNECTIONS_PER_IP": "many"},
		{"LOG_LEVEL": "chatty"},
	} {
		c := DefaultConfig()
		err := applyEnv(&c, lookupFrom(env))
		assert.True(t, errors.Is(err, errors.KindInvalidData), "should fail for %v", env)
	}
}

func TestHostURL(t *testing.T) {
	c := DefaultConfig()
	c.Port = 8123
	assert.Equal(t, "ws://127.0.0.1:8123/ws", c.HostURL())
	c.GameHostURL = nulls.NewString("wss://host.example/ws")
	assert.Equal(t, "wss://host.example/ws", c.HostURL())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{
  "role": "matchmaker",
  "lobby_id": "from-file",
  "game_host_url": "ws://host:8080/ws",
  "game": {"max_score": 3},
  "matchmaking": {"rank_tolerance": 100}
}`), 0o600))
	t.Setenv("LOBBY_ID", "from-env")
	c, err := LoadConfig(filename, true)
	require.NoError(t, err)
	assert.Equal(t, RoleMatchmaker, c.Role)
	assert.Equal(t, "from-env", c.LobbyID, "env should override file")
	assert.Equal(t, 3, c.Game.MaxScore)
	assert.Equal(t, DefaultConfig().Game.Map, c.Game.Map, "should keep defaults")
	assert.Equal(t, nulls.NewInt(100), c.Matchmaking.RankTolerance)
}

func TestLoadConfig_missingFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "missing.json")
	_, err := LoadConfig(filename, false)
	assert.NoError(t, err, "should accept missing optional file")
	_, err = LoadConfig(filename, true)
	assert.Error(t, err, "should fail for missing required file")
}

func TestLoadConfig_invalidJSON(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{`), 0o600))
	_, err := LoadConfig(filename, false)
	assert.True(t, errors.Is(err, errors.KindInvalidData))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "unknown role", modify: func(c *Config) { c.Role = "referee" }, wantErr: true},
		{name: "invalid port", modify: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "missing lobby id", modify: func(c *Config) { c.LobbyID = "" }, wantErr: true},
		{name: "missing lobby pass", modify: func(c *Config) { c.LobbyPass = "" }, wantErr: true},
		{name: "no connections allowed", modify: func(c *Config) { c.MaxConnectionsPerIP = 0 }, wantErr: true},
		{name: "matchmaker without host", modify: func(c *Config) { c.Role = RoleMatchmaker }, wantErr: true},
		{
			name: "matchmaker with host",
			modify: func(c *Config) {
				c.Role = RoleMatchmaker
				c.GameHostURL = nulls.NewString("ws://host/ws")
			},
		},
		{name: "negative round delay", modify: func(c *Config) { c.Matchmaking.RoundDelayMS = -1 }, wantErr: true},
		{name: "negative tolerance", modify: func(c *Config) { c.Matchmaking.RankTolerance = nulls.NewInt(-1) }, wantErr: true},
		{name: "zero debug stats interval", modify: func(c *Config) { c.Log.SystemDebugStatsInterval = nulls.NewInt(0) }, wantErr: true},
		{name: "trusted proxies", modify: func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/8", "::1"} }},
		{name: "invalid trusted proxy", modify: func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/40"} }, wantErr: true},
		{name: "invalid game config", modify: func(c *Config) { c.Game.MaxScore = 0 }, wantErr: true},
		{
			name: "game config ignored for matchmaker",
			modify: func(c *Config) {
				c.Role = RoleMatchmaker
				c.GameHostURL = nulls.NewString("ws://host/ws")
				c.Game.MaxScore = 0
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := ValidateConfig(c)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_gameConfigFile(t *testing.T) {
	dir := t.TempDir()
	gameFile := filepath.Join(dir, "game.json")
	require.NoError(t, os.WriteFile(gameFile, []byte(`{"max_score": 7}`), 0o600))
	filename := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"game": {"max_score": 3}}`), 0o600))
	t.Setenv("GAME_CONFIG_FILE", gameFile)
	c, err := LoadConfig(filename, true)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Game.MaxScore, "game config file should replace game section")
	assert.Equal(t, DefaultConfig().Game.Map, c.Game.Map)
}

func TestLoadConfig_invalidGameConfigFile(t *testing.T) {
	gameFile := filepath.Join(t.TempDir(), "game.json")
	require.NoError(t, os.WriteFile(gameFile, []byte(`{"max_score": 0}`), 0o600))
	t.Setenv("GAME_CONFIG_FILE", gameFile)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"), false)
	assert.True(t, errors.Is(err, errors.KindInvalidData))
}
