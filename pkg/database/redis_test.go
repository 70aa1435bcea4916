package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
)

func TestNewRedisClient_DisabledWithoutHost(t *testing.T) {
	client, err := NewRedisClient(context.Background(), &config.RedisConfig{Port: 6379})

	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient_UnreachableHost(t *testing.T) {
	// Port 1 on loopback refuses connections immediately.
	client, err := NewRedisClient(context.Background(), &config.RedisConfig{Host: "127.0.0.1", Port: 1})

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
