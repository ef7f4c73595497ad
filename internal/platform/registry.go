package platform

import (
	"log/slog"

	"github.com/cuongbtq/publish-orchestrator/internal/config"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/driver"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/facebook"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/graph"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/instagram"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/pinterest"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/rest"
	"github.com/cuongbtq/publish-orchestrator/internal/platform/youtube"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

// NewDrivers builds one state machine driver per supported platform.
// Instagram and Facebook share a paced Graph client.
func NewDrivers(cfg *config.DriversConfig, logger *slog.Logger) map[domain.Platform]driver.Driver {
	opts := driver.Options{
		Logger:            logger,
		PollInterval:      cfg.PollInterval,
		MaxProcessingWait: cfg.MaxProcessingWait,
		CallTimeout:       cfg.CallTimeout,
		TransferTimeout:   cfg.TransferTimeout,
	}

	graphAPI := rest.NewClient(&rest.Config{
		Logger:            logger.With(slog.String("component", "graph_api")),
		RequestsPerSecond: cfg.Graph.RequestsPerSecond,
		Burst:             cfg.Graph.Burst,
	})
	graphClient := graph.NewClient(graphAPI, graph.Config{
		BaseURL:       cfg.Graph.BaseURL,
		UploadBaseURL: cfg.Graph.UploadBaseURL,
		Version:       cfg.Graph.Version,
	})

	pinterestAPI := rest.NewClient(&rest.Config{
		Logger:            logger.With(slog.String("component", "pinterest_api")),
		RequestsPerSecond: cfg.Pinterest.RequestsPerSecond,
		Burst:             cfg.Pinterest.Burst,
	})

	protocols := []driver.Protocol{
		instagram.New(graphClient, logger),
		facebook.New(graphClient, logger),
		youtube.New(youtube.Config{
			Logger:     logger,
			CategoryID: cfg.YouTube.CategoryID,
			Endpoint:   cfg.YouTube.Endpoint,
		}),
		pinterest.New(pinterestAPI, cfg.Pinterest.BaseURL, logger),
	}

	drivers := make(map[domain.Platform]driver.Driver, len(protocols))
	for _, p := range protocols {
		drivers[p.Platform()] = driver.New(p, opts)
	}
	return drivers
}
