package fx

import (
	"github.com/Verdenroz/champion-recap/internal/aggregator"
	"github.com/Verdenroz/champion-recap/internal/api"
	"github.com/Verdenroz/champion-recap/internal/config"
	"github.com/Verdenroz/champion-recap/internal/database"
	"github.com/Verdenroz/champion-recap/internal/logger"
	"github.com/Verdenroz/champion-recap/internal/processor"
	"github.com/Verdenroz/champion-recap/internal/queue"
	"github.com/Verdenroz/champion-recap/internal/repository"
	"github.com/Verdenroz/champion-recap/internal/server"
	"github.com/Verdenroz/champion-recap/internal/service"

	"go.uber.org/fx"
)

func ProvideRiotAPI(client *api.RiotClient) api.ClientInterface {
	return client
}

func ProvideProcessorRecomputer(agg *aggregator.Aggregator) processor.Recomputer {
	return agg
}

func ProvideServiceRecomputer(agg *aggregator.Aggregator) service.Recomputer {
	return agg
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewMatchIndexRepository),
	fx.Provide(repository.NewCacheRepository),
	fx.Provide(repository.NewStatsRepository),
	fx.Provide(repository.NewProgressRepository),
	fx.Provide(repository.NewSnapshotRepository),
	// api client
	fx.Provide(api.NewRiotClient),
	fx.Provide(ProvideRiotAPI),
	// pipeline
	fx.Provide(queue.New),
	fx.Provide(aggregator.New),
	fx.Provide(aggregator.NewSweeper),
	fx.Provide(ProvideProcessorRecomputer),
	fx.Provide(processor.New),
	fx.Provide(processor.NewWorkers),
	// svc
	fx.Provide(ProvideServiceRecomputer),
	fx.Provide(service.NewRecapService),
	// server
	fx.Provide(server.NewRecapServer),
)
