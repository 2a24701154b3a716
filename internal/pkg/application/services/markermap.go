package services

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/diwise/api-waterbodymap/internal/pkg/application/mapview"
	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/leaflet"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/repositories/database"
)

const DefaultSurface leaflet.Surface = "map"

//MarkerMapBuilder renders the map of all active water bodies
type MarkerMapBuilder struct {
	db      database.Datastore
	maps    *leaflet.Service
	surface leaflet.Surface
	opts    []mapview.Option
}

func NewMarkerMapBuilder(db database.Datastore, opts ...mapview.Option) *MarkerMapBuilder {
	return &MarkerMapBuilder{
		db:      db,
		maps:    leaflet.NewService(),
		surface: DefaultSurface,
		opts:    opts,
	}
}

//Build returns a map with markers for the active water bodies, along with those water bodies
func (b *MarkerMapBuilder) Build(ctx context.Context) (*leaflet.Map, []domain.WaterBody, error) {
	all, err := b.db.GetAllWaterBodies(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve water bodies: %w", err)
	}

	active := ActiveWaterBodies(all)

	m, err := b.maps.Initialize(b.surface, Records(active), b.opts...)
	if err != nil {
		return nil, nil, err
	}

	return m, active, nil
}

func ActiveWaterBodies(bodies []domain.WaterBody) []domain.WaterBody {
	return lo.Filter(bodies, func(wb domain.WaterBody, _ int) bool {
		return wb.Active
	})
}

//Records converts water bodies into map records
func Records(bodies []domain.WaterBody) []mapview.Record {
	return lo.Map(bodies, func(wb domain.WaterBody, _ int) mapview.Record {
		return mapview.Record{
			Name:      wb.Name,
			Latitude:  wb.Latitude,
			Longitude: wb.Longitude,
		}
	})
}
