package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
)

var ErrNotFound = errors.New("not found")

//Datastore is an interface that abstracts away the database implementation
type Datastore interface {
	GetWaterBodyFromID(ctx context.Context, id string) (*domain.WaterBody, error)
	GetAllWaterBodies(ctx context.Context) ([]domain.WaterBody, error)
	UpsertWaterBodies(ctx context.Context, bodies ...domain.WaterBody) error

	AddMeasurement(ctx context.Context, m domain.Measurement) error
	GetMeasurements(ctx context.Context, waterBodyID string, limit int) ([]domain.Measurement, error)
	GetMeasurementsSince(ctx context.Context, since time.Time) ([]domain.Measurement, error)
	QueryMeasurements(ctx context.Context, filter MeasurementFilter) ([]domain.Measurement, error)
}

//MeasurementFilter narrows a measurement query. Empty fields do not restrict the result
//and both ends of the time range are inclusive.
type MeasurementFilter struct {
	WaterBodyID string
	From        time.Time
	To          time.Time
}

func (f MeasurementFilter) matches(m domain.Measurement) bool {
	if f.WaterBodyID != "" && m.WaterBodyID != f.WaterBodyID {
		return false
	}
	if !f.From.IsZero() && m.MeasuredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && m.MeasuredAt.After(f.To) {
		return false
	}
	return true
}

//NewDatabaseConnection does not open a new connection ...
//It loads the water bodies from a GeoJSON feature collection at sourceURL into memory.
func NewDatabaseConnection(sourceURL string, log zerolog.Logger) (Datastore, error) {
	bodies, err := LoadWaterBodies(sourceURL, log)
	if err != nil {
		return nil, err
	}

	return NewInMemoryDatastore(bodies...), nil
}

//LoadWaterBodies fetches the published water bodies from a GeoJSON feature collection at sourceURL.
//Features that lack a usable id, or reuse the id of an earlier feature, are skipped.
func LoadWaterBodies(sourceURL string, log zerolog.Logger) ([]domain.WaterBody, error) {
	if sourceURL == "" {
		return nil, errors.New("a source url is required to load water bodies")
	}

	log.Info().Msgf("loading data from %s ...", sourceURL)

	resp, err := http.Get(sourceURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loading data from %s failed with status %d", sourceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", sourceURL, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal response from %s: %w", sourceURL, err)
	}

	bodies := []domain.WaterBody{}
	seen := map[string]bool{}

	for _, feature := range fc.Features {
		if !feature.Properties.MustBool("published", true) {
			continue
		}

		wb := waterBodyFromFeature(feature)

		if wb.ID == "" {
			log.Warn().Msgf("skipped water body %q without an id", wb.Name)
			continue
		}
		if seen[wb.ID] {
			log.Warn().Msgf("skipped water body %q with duplicate id %s", wb.Name, wb.ID)
			continue
		}
		seen[wb.ID] = true

		log.Info().Msgf("found published water body %s %s", wb.ID, wb.Name)

		bodies = append(bodies, wb)
	}

	return bodies, nil
}

func waterBodyFromFeature(feature *geojson.Feature) domain.WaterBody {
	now := time.Now().UTC()
	props := feature.Properties

	wb := domain.WaterBody{
		Name:                props.MustString("name", ""),
		Type:                domain.WaterBodyType(strings.ToUpper(props.MustString("type", string(domain.Lake)))),
		Description:         props.MustString("description", ""),
		RegulatoryBody:      props.MustString("regulatoryBody", ""),
		MonitoringStartDate: now,
		Active:              props.MustBool("active", true),
		DateCreated:         now,
		DateModified:        now,
	}

	if feature.ID != nil {
		wb.ID = fmt.Sprint(feature.ID)
	} else {
		wb.ID = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(wb.Name), " ", "-"))
	}

	switch g := feature.Geometry.(type) {
	case nil:
	case orb.Point:
		lat, lon := g.Lat(), g.Lon()
		wb.Latitude, wb.Longitude = &lat, &lon
	default:
		// polygons and lines are represented by the center of their bounds
		center := g.Bound().Center()
		lat, lon := center.Lat(), center.Lon()
		wb.Latitude, wb.Longitude = &lat, &lon
	}

	return wb
}

//NewInMemoryDatastore returns a Datastore seeded with the given water bodies
func NewInMemoryDatastore(bodies ...domain.WaterBody) Datastore {
	db := &myDB{
		waterBodies:  append([]domain.WaterBody{}, bodies...),
		measurements: map[string][]domain.Measurement{},
	}

	sort.SliceStable(db.waterBodies, func(i, j int) bool {
		return db.waterBodies[i].Name < db.waterBodies[j].Name
	})

	return db
}

type myDB struct {
	mu           sync.RWMutex
	waterBodies  []domain.WaterBody
	measurements map[string][]domain.Measurement
}

func (db *myDB) GetWaterBodyFromID(ctx context.Context, id string) (*domain.WaterBody, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, wb := range db.waterBodies {
		if wb.ID == id {
			return &wb, nil
		}
	}
	return nil, fmt.Errorf("water body %s: %w", id, ErrNotFound)
}

func (db *myDB) GetAllWaterBodies(ctx context.Context) ([]domain.WaterBody, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return append([]domain.WaterBody{}, db.waterBodies...), nil
}

func (db *myDB) UpsertWaterBodies(ctx context.Context, bodies ...domain.WaterBody) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, wb := range bodies {
		if wb.ID == "" {
			return fmt.Errorf("water body %q has no id", wb.Name)
		}

		_, idx, found := lo.FindIndexOf(db.waterBodies, func(existing domain.WaterBody) bool {
			return existing.ID == wb.ID
		})
		if found {
			wb.DateCreated = db.waterBodies[idx].DateCreated
			db.waterBodies[idx] = wb
		} else {
			db.waterBodies = append(db.waterBodies, wb)
		}
	}

	sort.SliceStable(db.waterBodies, func(i, j int) bool {
		return db.waterBodies[i].Name < db.waterBodies[j].Name
	})

	return nil
}

func (db *myDB) AddMeasurement(ctx context.Context, m domain.Measurement) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := -1
	for i := range db.waterBodies {
		if db.waterBodies[i].ID == m.WaterBodyID {
			idx = i
			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("water body %s: %w", m.WaterBodyID, ErrNotFound)
	}

	if m.DateCreated.IsZero() {
		m.DateCreated = time.Now().UTC()
	}

	list := append(db.measurements[m.WaterBodyID], m)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].MeasuredAt.After(list[j].MeasuredAt)
	})
	db.measurements[m.WaterBodyID] = list
	db.waterBodies[idx].DateModified = m.DateCreated

	return nil
}

func (db *myDB) GetMeasurements(ctx context.Context, waterBodyID string, limit int) ([]domain.Measurement, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	list := db.measurements[waterBodyID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return append([]domain.Measurement{}, list...), nil
}

func (db *myDB) GetMeasurementsSince(ctx context.Context, since time.Time) ([]domain.Measurement, error) {
	return db.QueryMeasurements(ctx, MeasurementFilter{From: since})
}

func (db *myDB) QueryMeasurements(ctx context.Context, filter MeasurementFilter) ([]domain.Measurement, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []domain.Measurement{}
	for _, list := range db.measurements {
		result = append(result, lo.Filter(list, func(m domain.Measurement, _ int) bool {
			return filter.matches(m)
		})...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].MeasuredAt.After(result[j].MeasuredAt)
	})

	return result, nil
}
