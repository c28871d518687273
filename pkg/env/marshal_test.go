package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Interval time.Duration `env:"TEST_INTERVAL"`
	Weight   float64       `env:"TEST_WEIGHT"`
}

type sample struct {
	Name    string `env:"TEST_NAME,required"`
	Count   int    `env:"TEST_COUNT"`
	Enabled bool   `env:"TEST_ENABLED"`
	APIKey  string `env:"TEST_API_KEY" secret:"true"`
	Ignored string
	Inner   nested
}

func TestMarshalEnv(t *testing.T) {
	c := &sample{
		Name:   "tusk",
		Count:  3,
		APIKey: "sk-123",
		Inner:  nested{Interval: 90 * time.Minute, Weight: 0.8},
	}

	out, err := MarshalEnv(c, false)
	require.NoError(t, err)
	assert.Equal(t,
		"TEST_NAME=tusk\nTEST_COUNT=3\nTEST_API_KEY=****\nTEST_INTERVAL=1h30m0s\nTEST_WEIGHT=0.8\n",
		out)
}

func TestMarshalEnv_IncludeZero(t *testing.T) {
	out, err := MarshalEnv(&sample{}, true)
	require.NoError(t, err)
	assert.Contains(t, out, "TEST_ENABLED=false\n")
	assert.Contains(t, out, "TEST_API_KEY=\n")
	assert.Contains(t, out, "TEST_INTERVAL=0s\n")
}

func TestMarshalEnv_RejectsNonPointer(t *testing.T) {
	_, err := MarshalEnv(sample{}, false)
	assert.Error(t, err)
}
