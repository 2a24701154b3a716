package application

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
)

func TestMeasurementReceiverStoresMeasurement(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	db := testDatastore()

	receiver := CreateMeasurementReceiver(db, domain.DefaultStandards())
	receiver(amqp.Delivery{RoutingKey: MeasurementTopic, Body: []byte(validMeasurement)}, log.With().Logger())

	list, err := db.GetMeasurements(ctx, "a", 0)
	is.NoErr(err)
	is.Equal(len(list), 1)
	is.Equal(list[0].EColiCount, 200)
	is.Equal(list[0].MeasuredBy, "Test Researcher")
}

func TestMeasurementReceiverIgnoresBadMessages(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "temperature is 20 degrees"},
		{"no timestamp", strings.Replace(validMeasurement, `"measuredAt":"2026-10-01T10:00:00Z",`, "", 1)},
		{"invalid ph", strings.Replace(validMeasurement, `"ph":7.5`, `"ph":-1`, 1)},
		{"unknown water body", strings.Replace(validMeasurement, `"waterBodyId":"a"`, `"waterBodyId":"zzz"`, 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			ctx := context.Background()
			db := testDatastore()

			receiver := CreateMeasurementReceiver(db, domain.DefaultStandards())
			receiver(amqp.Delivery{RoutingKey: MeasurementTopic, Body: []byte(tc.body)}, log.With().Logger())

			recent, err := db.GetMeasurementsSince(ctx, time.Time{})
			is.NoErr(err)
			is.Equal(len(recent), 0)
		})
	}
}

func TestSampleLocationRequiresBothCoordinates(t *testing.T) {
	is := is.New(t)

	req := measurementRequest{}
	body := strings.Replace(validMeasurement, `"ph":7.5`, `"ph":7.5,"latitude":40.7128`, 1)
	is.NoErr(json.Unmarshal([]byte(body), &req))
	is.NoErr(req.Validate())
	is.True(req.toMeasurement().SampleLatitude == nil)

	req = measurementRequest{}
	body = strings.Replace(validMeasurement, `"ph":7.5`, `"ph":7.5,"latitude":40.7128,"longitude":-74.006`, 1)
	is.NoErr(json.Unmarshal([]byte(body), &req))
	is.NoErr(req.Validate())

	m := req.toMeasurement()
	is.Equal(*m.SampleLatitude, 40.7128)
	is.Equal(*m.SampleLongitude, -74.006)
}
