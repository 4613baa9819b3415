package service

import (
	"testing"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestActorRegistry(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.RequireAPIKey = false
	cfg.Actors = []config.ActorConfig{
		{Name: "keeper", Address: "0x00000000000000000000000000000000000000a2", APIKey: "sk-keeper", QPS: 5, Burst: 10},
		{Name: "marketplace", Address: "0x00000000000000000000000000000000000000a3", APIKey: "sk-market"},
	}
	reg := NewActorRegistry(cfg)

	actor, ok := reg.ByAPIKey("sk-market")
	require.True(t, ok)
	assert.Equal(t, sourceAddr, actor.Address)

	_, ok = reg.ByAPIKey("sk-unknown")
	assert.False(t, ok)

	require.NotNil(t, reg.DefaultActor())
	assert.Equal(t, "keeper", reg.DefaultActor().Name)

	keeper := reg.LimiterFor(operatorAddr)
	require.NotNil(t, keeper)
	assert.Equal(t, rate.Limit(5), keeper.Limit())
	assert.Equal(t, 10, keeper.Burst())
	assert.Equal(t, rate.Inf, reg.LimiterFor(sourceAddr).Limit())

	names := []string{}
	for _, a := range reg.List() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"keeper", "marketplace"}, names)
}

func TestActorRegistryRequiresKeyByDefault(t *testing.T) {
	cfg := config.Defaults()
	cfg.Actors = []config.ActorConfig{{Name: "keeper", Address: "0x00000000000000000000000000000000000000a2", APIKey: "sk"}}
	assert.Nil(t, NewActorRegistry(cfg).DefaultActor())
}
