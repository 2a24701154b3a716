package application

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/diwise/api-waterbodymap/internal/pkg/application/services"
	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/leaflet"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/repositories/database"
)

const (
	dashboardTitle     string = "Water Quality Dashboard"
	recentPeriod              = 30 * 24 * time.Hour
	trendPeriod               = 7 * 24 * time.Hour
	dashboardAlerts    int    = 10
	trendWaterBodies   int    = 5
	detailMeasurements int    = 50
	detailTrendPoints  int    = 30
	shutdownTimeout           = 10 * time.Second
)

//RequestRouter wraps the chi router that serves the map and the api
type RequestRouter struct {
	impl *chi.Mux
}

func (router *RequestRouter) addProbeHandlers() {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (router *RequestRouter) addWaterBodyHandlers(db database.Datastore, builder *services.MarkerMapBuilder, standards domain.Standards, log zerolog.Logger) {
	router.Get("/", newDashboardHandler(db, builder, standards, log))
	router.Get("/api/waterbodies", newListWaterBodiesHandler(db, standards, log))
	router.Get("/api/waterbodies/markers", newMarkersHandler(builder, log))
	router.Get("/api/waterbodies/trends", newTrendsHandler(db, log))
	router.Get("/api/waterbodies/{id}", newWaterBodyDetailHandler(db, standards, log))
	router.Post("/api/measurements", newSubmitMeasurementHandler(db, standards, log))
	router.Get("/api/measurements/export", newExportMeasurementsHandler(db, standards, log))
	router.Get("/api/measurements/export/summary", newExportSummaryHandler(db, standards, log))
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter(log zerolog.Logger) *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "application/geo+json", "text/html")
	router.impl.Use(compressor.Handler)
	router.impl.Use(httplog.RequestLogger(log))

	return router
}

func createRequestRouter(db database.Datastore, builder *services.MarkerMapBuilder, standards domain.Standards, log zerolog.Logger) *RequestRouter {
	router := newRequestRouter(log)

	router.addWaterBodyHandlers(db, builder, standards, log)
	router.addProbeHandlers()

	return router
}

//CreateRouterAndStartServing sets up the router and serves incoming requests on port until ctx is done
func CreateRouterAndStartServing(ctx context.Context, db database.Datastore, builder *services.MarkerMapBuilder, standards domain.Standards, port string, log zerolog.Logger) error {
	router := createRequestRouter(db, builder, standards, log)
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down http server")
		}
	}()

	log.Info().Msgf("starting api-waterbodymap on port %s", port)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, contentType string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, "application/json", map[string]string{"error": msg})
}

func newDashboardHandler(db database.Datastore, builder *services.MarkerMapBuilder, standards domain.Standards, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		m, active, err := builder.Build(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to build marker map")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		all, err := db.GetMeasurementsSince(ctx, time.Time{})
		if err != nil {
			log.Error().Err(err).Msg("failed to retrieve measurements")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		bodies, err := db.GetAllWaterBodies(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to retrieve water bodies")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		byID := lo.KeyBy(bodies, func(wb domain.WaterBody) string { return wb.ID })

		since := time.Now().UTC().Add(-recentPeriod)
		recent := lo.Filter(all, func(measurement domain.Measurement, _ int) bool {
			return !measurement.MeasuredAt.Before(since)
		})
		withAlerts := lo.Filter(recent, func(measurement domain.Measurement, _ int) bool {
			return measurement.HasAlerts(standards)
		})

		alerts := lo.Map(lo.Slice(withAlerts, 0, dashboardAlerts), func(measurement domain.Measurement, _ int) leaflet.Alert {
			return leaflet.Alert{
				Heading: fmt.Sprintf("%s, %s", byID[measurement.WaterBodyID].Name, measurement.MeasuredAt.UTC().Format("2006-01-02 15:04")),
				Details: measurement.Alerts(standards),
			}
		})

		buf := &bytes.Buffer{}
		err = leaflet.Render(buf, leaflet.Page{
			Title: dashboardTitle,
			Stats: []leaflet.Stat{
				{Label: "Active water bodies", Value: len(active)},
				{Label: "Total measurements", Value: len(all)},
				{Label: "Measurements last 30 days", Value: len(recent)},
				{Label: "Alerts last 30 days", Value: len(withAlerts)},
			},
			Map:    m,
			Alerts: alerts,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to render dashboard")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

type waterBodyStatus struct {
	domain.WaterBody
	LatestMeasurement *domain.Measurement  `json:"latestMeasurement,omitempty"`
	QualityStatus     domain.QualityStatus `json:"qualityStatus"`
	HasAlerts         bool                 `json:"hasAlerts"`
}

func newListWaterBodiesHandler(db database.Datastore, standards domain.Standards, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		all, err := db.GetAllWaterBodies(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to retrieve water bodies")
			writeError(w, http.StatusInternalServerError, "failed to retrieve water bodies")
			return
		}

		result := make([]waterBodyStatus, 0, len(all))

		for _, wb := range services.ActiveWaterBodies(all) {
			status := waterBodyStatus{WaterBody: wb}

			latest, err := db.GetMeasurements(ctx, wb.ID, 1)
			if err != nil {
				log.Error().Err(err).Msgf("failed to retrieve measurements for %s", wb.ID)
				writeError(w, http.StatusInternalServerError, "failed to retrieve measurements")
				return
			}

			if len(latest) > 0 {
				status.LatestMeasurement = &latest[0]
				status.HasAlerts = latest[0].HasAlerts(standards)
			}
			status.QualityStatus = domain.StatusOf(status.LatestMeasurement, standards)

			result = append(result, status)
		}

		writeJSON(w, http.StatusOK, "application/json", result)
	}
}

type measurementAverages struct {
	PH              float64 `json:"avgPh"`
	DissolvedOxygen float64 `json:"avgDissolvedOxygen"`
	Temperature     float64 `json:"avgTemperature"`
	Turbidity       float64 `json:"avgTurbidity"`
}

func averagesOf(measurements []domain.Measurement) *measurementAverages {
	if len(measurements) == 0 {
		return nil
	}

	avg := &measurementAverages{}
	for _, m := range measurements {
		avg.PH += m.PH
		avg.DissolvedOxygen += m.DissolvedOxygen
		avg.Temperature += m.Temperature
		avg.Turbidity += m.Turbidity
	}

	n := float64(len(measurements))
	avg.PH /= n
	avg.DissolvedOxygen /= n
	avg.Temperature /= n
	avg.Turbidity /= n

	return avg
}

type trendPoint struct {
	MeasuredAt      time.Time `json:"measuredAt"`
	PH              float64   `json:"ph"`
	DissolvedOxygen float64   `json:"dissolvedOxygen"`
	Temperature     float64   `json:"temperature"`
	Turbidity       float64   `json:"turbidity"`
}

//trendOf returns the points of measurements, which are sorted newest first, in chronological order
func trendOf(measurements []domain.Measurement) []trendPoint {
	points := make([]trendPoint, 0, len(measurements))
	for i := len(measurements) - 1; i >= 0; i-- {
		m := measurements[i]
		points = append(points, trendPoint{m.MeasuredAt, m.PH, m.DissolvedOxygen, m.Temperature, m.Turbidity})
	}
	return points
}

type trendSeries struct {
	WaterBodyID string       `json:"waterBodyId"`
	Name        string       `json:"name"`
	Points      []trendPoint `json:"data"`
}

func newTrendsHandler(db database.Datastore, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		all, err := db.GetAllWaterBodies(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to retrieve water bodies")
			writeError(w, http.StatusInternalServerError, "failed to retrieve water bodies")
			return
		}

		since := time.Now().UTC().Add(-trendPeriod)
		series := []trendSeries{}

		for _, wb := range lo.Slice(services.ActiveWaterBodies(all), 0, trendWaterBodies) {
			recent, err := db.QueryMeasurements(ctx, database.MeasurementFilter{WaterBodyID: wb.ID, From: since})
			if err != nil {
				log.Error().Err(err).Msgf("failed to retrieve measurements for %s", wb.ID)
				writeError(w, http.StatusInternalServerError, "failed to retrieve measurements")
				return
			}

			if len(recent) > 0 {
				series = append(series, trendSeries{WaterBodyID: wb.ID, Name: wb.Name, Points: trendOf(recent)})
			}
		}

		writeJSON(w, http.StatusOK, "application/json", series)
	}
}

func newWaterBodyDetailHandler(db database.Datastore, standards domain.Standards, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		wb, err := db.GetWaterBodyFromID(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no water body with id "+id)
			return
		}
		if err != nil {
			log.Error().Err(err).Msgf("failed to retrieve water body %s", id)
			writeError(w, http.StatusInternalServerError, "failed to retrieve water body")
			return
		}

		all, err := db.GetMeasurements(ctx, id, 0)
		if err != nil {
			log.Error().Err(err).Msgf("failed to retrieve measurements for %s", id)
			writeError(w, http.StatusInternalServerError, "failed to retrieve measurements")
			return
		}

		var latest *domain.Measurement
		if len(all) > 0 {
			latest = &all[0]
		}

		writeJSON(w, http.StatusOK, "application/json", struct {
			WaterBody     *domain.WaterBody    `json:"waterBody"`
			Measurements  []domain.Measurement `json:"measurements"`
			Stats         *measurementAverages `json:"stats,omitempty"`
			Trend         []trendPoint         `json:"trend"`
			QualityStatus domain.QualityStatus `json:"qualityStatus"`
		}{
			WaterBody:     wb,
			Measurements:  lo.Slice(all, 0, detailMeasurements),
			Stats:         averagesOf(all),
			Trend:         trendOf(lo.Slice(all, 0, detailTrendPoints)),
			QualityStatus: domain.StatusOf(latest, standards),
		})
	}
}

func newMarkersHandler(builder *services.MarkerMapBuilder, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, _, err := builder.Build(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to build marker map")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, err := m.GeoJSON()
		if err != nil {
			log.Error().Err(err).Msg("failed to encode markers")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func newSubmitMeasurementHandler(db database.Datastore, standards domain.Standards, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := measurementRequest{}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		if err := req.Validate(); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
					return fe.Field()
				})
				writeJSON(w, http.StatusBadRequest, "application/json", map[string]any{
					"error":  "invalid measurement",
					"fields": fields,
				})
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		m := req.toMeasurement()

		err := db.AddMeasurement(r.Context(), m)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no water body with id "+m.WaterBodyID)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to store measurement")
			writeError(w, http.StatusInternalServerError, "failed to store measurement")
			return
		}

		writeJSON(w, http.StatusCreated, "application/json", struct {
			Measurement   domain.Measurement   `json:"measurement"`
			Alerts        []string             `json:"alerts"`
			QualityStatus domain.QualityStatus `json:"qualityStatus"`
		}{m, m.Alerts(standards), m.QualityStatus(standards)})
	}
}
