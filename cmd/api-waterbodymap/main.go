package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/rs/zerolog/log"

	"github.com/diwise/api-waterbodymap/internal/pkg/application"
	"github.com/diwise/api-waterbodymap/internal/pkg/application/mapview"
	"github.com/diwise/api-waterbodymap/internal/pkg/application/services"
	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/env"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/storage"
)

func main() {

	serviceName := "api-waterbodymap"

	logger := log.With().Str("service", strings.ToLower(serviceName)).Logger()

	logger.Info().Msg("starting up ...")

	env.Load(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sourceURL := env.GetOrDefault("SOURCE_DATA_URL", "")
	databaseURL := env.GetOrDefault("DATABASE_URL", "")
	port := env.GetOrDefault("SERVICE_PORT", "8080")

	var db database.Datastore
	var err error

	if databaseURL != "" {
		var closeDB func()
		db, closeDB, err = database.NewPostgresDatastore(ctx, databaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer closeDB()

		if sourceURL != "" {
			seed(ctx, db, sourceURL)
		}
	} else if sourceURL != "" {
		db, err = database.NewDatabaseConnection(sourceURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load water bodies")
		}
	} else {
		logger.Warn().Msg("neither DATABASE_URL nor SOURCE_DATA_URL is set, starting with an empty datastore")
		db = database.NewInMemoryDatastore()
	}

	standards := domain.DefaultStandards()
	builder := services.NewMarkerMapBuilder(db, mapOptions()...)

	if env.GetOrDefault("RABBITMQ_HOST", "") != "" {
		config := messaging.LoadConfiguration(serviceName, logger)
		messenger, err := messaging.Initialize(config)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer messenger.Close()

		messenger.RegisterTopicMessageHandler(application.MeasurementTopic, application.CreateMeasurementReceiver(db, standards))
	}

	if endpoint := env.GetOrDefault("MINIO_ENDPOINT", ""); endpoint != "" {
		s3, err := storage.NewS3Service(ctx, storage.Config{
			Endpoint:  endpoint,
			AccessKey: env.GetOrDefault("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetOrDefault("MINIO_SECRET_KEY", ""),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetOrDefault("MINIO_BUCKET", "waterbodymap"),
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to set up snapshot storage")
		}

		sss := services.NewSnapshotService(logger, s3, builder, env.GetDuration("SNAPSHOT_INTERVAL", services.DefaultSnapshotInterval))
		defer sss.Shutdown()
	}

	err = application.CreateRouterAndStartServing(ctx, db, builder, standards, port, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to serve http")
		return
	}

	logger.Info().Msg("shutting down ...")
}

func seed(ctx context.Context, db database.Datastore, sourceURL string) {
	logger := log.With().Str("source", sourceURL).Logger()

	bodies, err := database.LoadWaterBodies(sourceURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load water bodies")
	}

	if err = db.UpsertWaterBodies(ctx, bodies...); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed water bodies")
	}

	logger.Info().Msgf("seeded %d water bodies", len(bodies))
}

func mapOptions() []mapview.Option {
	opts := []mapview.Option{
		mapview.WithTileLayer(mapview.TileLayer{
			URLTemplate: env.GetOrDefault("MAP_TILE_URL", mapview.DefaultTileURL),
			Attribution: env.GetOrDefault("MAP_TILE_ATTRIBUTION", mapview.DefaultAttribution),
		}),
	}

	if env.GetBool("MAP_PLACE_ZERO_COORDINATES", false) {
		opts = append(opts, mapview.WithPlacementPolicy(mapview.Present))
	}

	return opts
}
