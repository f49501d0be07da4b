package games

import (
	"github.com/lefinal/rally-server/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "game.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"max_score": 11}`), 0o600))
	c, err := LoadConfig(filename)
	require.NoError(t, err)
	want := DefaultConfig()
	want.MaxScore = 11
	assert.Equal(t, want, c, "unset fields should keep defaults")
}

func TestLoadConfig_invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad json", content: `{"max_score": `},
		{name: "failing validation", content: `{"max_score": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(filename, []byte(tt.content), 0o600))
			_, err := LoadConfig(filename)
			assert.True(t, errors.Is(err, errors.KindInvalidData))
		})
	}
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
