package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "-3")
	t.Setenv("CFG_BOOL", "yes")
	t.Setenv("CFG_DUR", "90s")
	t.Setenv("CFG_SECS", "15")
	t.Setenv("CFG_LIST", " a, ,b ,c")

	assert.Equal(t, 42, Int("CFG_INT", 7))
	assert.Equal(t, 7, Int("CFG_BAD_INT", 7))
	assert.Equal(t, 7, Int("CFG_MISSING", 7))
	assert.True(t, Bool("CFG_BOOL", false))
	assert.False(t, Bool("CFG_MISSING", false))
	assert.Equal(t, 90*time.Second, Duration("CFG_DUR", time.Second))
	assert.Equal(t, 15*time.Second, Duration("CFG_SECS", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, List("CFG_LIST", ""))
	assert.Empty(t, List("CFG_MISSING", " , "))
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CFG_BOOL", "maybe")
	t.Setenv("CFG_FLOAT", "0.25")
	t.Setenv("CFG_BAD_FLOAT", "quarter")
	t.Setenv("CFG_NEG_DUR", "-5s")
	t.Setenv("CFG_ZERO_SECS", "0")
	t.Setenv("CFG_BLANK", "   ")

	assert.True(t, Bool("CFG_BOOL", true))
	assert.Equal(t, 0.25, Float("CFG_FLOAT", 1))
	assert.Equal(t, 1.0, Float("CFG_BAD_FLOAT", 1))
	assert.Equal(t, time.Minute, Duration("CFG_NEG_DUR", time.Minute))
	assert.Equal(t, time.Minute, Duration("CFG_ZERO_SECS", time.Minute))
	assert.Equal(t, "dflt", String("CFG_BLANK", "dflt"))

	_, err := RequiredString("CFG_BLANK")
	assert.ErrorContains(t, err, "CFG_BLANK is required")
}

func TestPort(t *testing.T) {
	t.Setenv("CFG_PORT", "70000")
	_, err := Port("CFG_PORT", "8080")
	require.Error(t, err)

	p, err := Port("CFG_PORT_UNSET", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("SEED_PHONE", "5511999990000")
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Studio\nphone: \"${SEED_PHONE}\"\n"), 0o600))

	var out struct {
		Name  string `yaml:"name"`
		Phone string `yaml:"phone"`
	}
	require.NoError(t, LoadYAML(path, &out))
	assert.Equal(t, "Studio", out.Name)
	assert.Equal(t, "5511999990000", out.Phone)
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nme: typo\n"), 0o600))

	var out struct {
		Name string `yaml:"name"`
	}
	require.Error(t, LoadYAML(path, &out))
}
