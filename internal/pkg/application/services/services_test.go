package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/diwise/api-waterbodymap/internal/pkg/application/mapview"
	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/repositories/database"
)

func f(v float64) *float64 {
	return &v
}

func testDatastore() database.Datastore {
	return database.NewInMemoryDatastore(
		domain.WaterBody{ID: "a", Name: "Lake A", Latitude: f(40), Longitude: f(-80), Active: true},
		domain.WaterBody{ID: "b", Name: "Lake B", Latitude: nil, Longitude: f(-70), Active: true},
		domain.WaterBody{ID: "c", Name: "Lake C", Latitude: f(0), Longitude: f(10), Active: true},
		domain.WaterBody{ID: "d", Name: "Retired Reservoir", Latitude: f(35), Longitude: f(-100), Active: false},
	)
}

func TestBuildPlacesActiveWaterBodies(t *testing.T) {
	is := is.New(t)

	m, active, err := NewMarkerMapBuilder(testDatastore()).Build(context.Background())
	is.NoErr(err)

	is.Equal(len(active), 3)
	is.Equal(m.Surface, "map")
	is.Equal(len(m.Markers), 1)
	is.Equal(m.Markers[0].Popup, "<strong>Lake A</strong>")
}

func TestBuildWithPresentPolicy(t *testing.T) {
	is := is.New(t)

	builder := NewMarkerMapBuilder(testDatastore(), mapview.WithPlacementPolicy(mapview.Present))
	m, _, err := builder.Build(context.Background())
	is.NoErr(err)

	is.Equal(len(m.Markers), 2)
}

type fakePublisher struct {
	mu        sync.Mutex
	snapshots [][]byte
}

func (fp *fakePublisher) PublishSnapshot(ctx context.Context, takenAt time.Time, geoJSON []byte) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.snapshots = append(fp.snapshots, geoJSON)
	return nil
}

func (fp *fakePublisher) count() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.snapshots)
}

func TestSnapshotServicePublishesUntilShutdown(t *testing.T) {
	is := is.New(t)

	publisher := &fakePublisher{}
	svc := NewSnapshotService(log.With().Logger(), publisher, NewMarkerMapBuilder(testDatastore()), 10*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for publisher.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	svc.Shutdown()
	published := publisher.count()
	is.True(published >= 2)

	time.Sleep(30 * time.Millisecond)
	is.Equal(publisher.count(), published) // nothing is published after shutdown

	fc, err := geojson.UnmarshalFeatureCollection(publisher.snapshots[0])
	is.NoErr(err)
	is.Equal(len(fc.Features), 1)
}

func TestSnapshotServiceWithoutPositiveIntervalUsesDefault(t *testing.T) {
	is := is.New(t)

	for _, interval := range []time.Duration{0, -time.Second} {
		publisher := &fakePublisher{}
		svc := NewSnapshotService(log.With().Logger(), publisher, NewMarkerMapBuilder(testDatastore()), interval)

		deadline := time.Now().Add(5 * time.Second)
		for publisher.count() < 1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		svc.Shutdown()
		is.Equal(publisher.count(), 1) // one immediate snapshot, the next is a default interval away
		is.Equal(svc.(*snapshotServiceImpl).interval, DefaultSnapshotInterval)
	}
}
