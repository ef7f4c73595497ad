package platform

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/config"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDrivers(t *testing.T) {
	drivers := NewDrivers(&config.DriversConfig{
		PollInterval:      time.Second,
		MaxProcessingWait: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Len(t, drivers, len(domain.AllPlatforms))
	for _, p := range domain.AllPlatforms {
		d, ok := drivers[p]
		require.True(t, ok, "missing driver for %s", p)
		assert.Equal(t, p, d.Platform())
	}

	assert.True(t, drivers[domain.PlatformInstagram].NeedsPublicURL())
	assert.False(t, drivers[domain.PlatformYouTube].NeedsPublicURL())
	assert.False(t, drivers[domain.PlatformFacebook].NeedsPublicURL())
	assert.False(t, drivers[domain.PlatformPinterest].NeedsPublicURL())
}
