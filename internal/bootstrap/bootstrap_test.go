package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/config"
	"github.com/Spok95/achievement-service/internal/models"
)

func TestBuild_Memory(t *testing.T) {
	cfg := &config.Config{
		Storage:          "memory",
		Location:         time.UTC,
		HallOfFameLevels: []string{"NASIONAL"},
		ApproverRoles:    []string{"BK"},
	}
	d, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.Service)
	assert.Nil(t, d.Health)

	res, err := d.Service.Query(context.Background(), models.AchievementFilter{}, models.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestBuild_BadRedisURL(t *testing.T) {
	cfg := &config.Config{
		Storage:      "memory",
		DirectoryURL: "http://directory.local",
		RedisURL:     "not-a-url",
	}
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestConversions(t *testing.T) {
	assert.Equal(t, []models.Level{models.LevelNasional}, toLevels([]string{"NASIONAL"}))
	assert.Equal(t, []models.Role{models.RoleBK}, toRoles([]string{"BK"}))
	assert.Empty(t, toRoles(nil))
}
