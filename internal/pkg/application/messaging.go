package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/repositories/database"
)

const (
	MeasurementTopic string = "waterquality.measurement"

	receiveTimeout = 10 * time.Second
)

func CreateMeasurementReceiver(db database.Datastore, standards domain.Standards) messaging.TopicMessageHandler {
	return func(msg amqp.Delivery, log zerolog.Logger) {

		log.Debug().Msgf("message received from queue: %s", string(msg.Body))

		req := measurementRequest{}
		err := json.Unmarshal(msg.Body, &req)

		if err != nil {
			log.Error().Err(err).Msg("failed to unmarshal message")
			return
		}

		if req.MeasuredAt.IsZero() {
			log.Info().Msg("ignored measurement message with an empty timestamp")
			return
		}

		if err = req.Validate(); err != nil {
			log.Info().Msgf("ignored invalid measurement message: %s", err.Error())
			return
		}

		m := req.toMeasurement()

		ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
		defer cancel()

		err = db.AddMeasurement(ctx, m)
		if errors.Is(err, database.ErrNotFound) {
			log.Info().Msgf("measurement was ignored: %s", err.Error())
			return
		}
		if err != nil {
			log.Error().Err(err).Msgf("failed to store measurement for %s", m.WaterBodyID)
			return
		}

		alerts := m.Alerts(standards)
		if len(alerts) > 0 {
			log.Warn().Strs("alerts", alerts).Msgf("measurement at %s exceeds water quality standards", m.WaterBodyID)
		}

		log.Info().Msgf("stored measurement %s for %s (%s)", m.ID, m.WaterBodyID, m.QualityStatus(standards))
	}
}
