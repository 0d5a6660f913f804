package configs

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDevelopmentDefaults(t *testing.T) {
	cfg, err := fromViper(newViper(nil))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Equal(t, 5*time.Second, cfg.RPCTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, CounterpartsLocalChats, cfg.PresenceCounterparts)
	assert.False(t, cfg.S3Enabled())
	assert.Empty(t, cfg.InstanceID)
}

func TestStableInstanceID(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]any{"INSTANCE_ID": " messenger-0 "}))
	require.NoError(t, err)
	assert.Equal(t, "messenger-0", cfg.InstanceID)
}

func TestProductionRequiresSharedRegistry(t *testing.T) {
	_, err := fromViper(newViper(map[string]any{
		"ENVIRONMENT":  "production",
		"DATABASE_URL": "postgres://db/messenger",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")

	cfg, err := fromViper(newViper(map[string]any{
		"ENVIRONMENT":  "production",
		"DATABASE_URL": "postgres://db/messenger",
		"REDIS_ADDR":   "redis:6379",
	}))
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]any{
		"port":         {"PORT": 80},
		"mode":         {"IDENTITY_MODE": "ldap"},
		"token check":  {"TOKEN_CHECK": "trust"},
		"counterparts": {"PRESENCE_COUNTERPARTS": "everyone"},
		"timeout":      {"RPC_TIMEOUT": "0s"},
		"instance id":  {"INSTANCE_ID": "pod/1"},
		"pool size":    {"DB_MAX_CONNS": -1},
	}

	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fromViper(newViper(values))
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Equal(t, []string{}, splitList(""))
}
