package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
	"github.com/diwise/api-waterbodymap/internal/pkg/infrastructure/repositories/database"
)

const (
	exportDateLayout string = "2006-01-02"
	exportTimeLayout string = "2006-01-02 15:04:05"

	compliant    string = "COMPLIANT"
	nonCompliant string = "NON-COMPLIANT"
)

var exportHeaders = []string{
	"Water Body", "Water Body Type", "Latitude", "Longitude",
	"Measurement Date/Time", "Measured By",
	"pH", "Dissolved Oxygen (mg/L)", "Temperature (°C)",
	"Turbidity (NTU)", "Nitrates (mg/L)", "Phosphates (mg/L)",
	"E. coli (CFU/100mL)", "EPA Compliance Status", "Alerts", "Notes",
}

var errBadExportFilter = errors.New("bad export filter")

//parseExportTime accepts either a date or an RFC3339 timestamp. A date used as the
//end of a range covers that whole day.
func parseExportTime(value string, endOfRange bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	t, err := time.Parse(exportDateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is neither a date nor a timestamp", errBadExportFilter, value)
	}

	if endOfRange {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}

	return t, nil
}

func exportFilterFromRequest(ctx context.Context, db database.Datastore, r *http.Request) (database.MeasurementFilter, error) {
	q := r.URL.Query()
	filter := database.MeasurementFilter{WaterBodyID: q.Get("waterBodyId")}

	var err error
	if filter.From, err = parseExportTime(q.Get("start"), false); err != nil {
		return filter, err
	}
	if filter.To, err = parseExportTime(q.Get("end"), true); err != nil {
		return filter, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return filter, fmt.Errorf("%w: end is before start", errBadExportFilter)
	}

	if filter.WaterBodyID != "" {
		if _, err = db.GetWaterBodyFromID(ctx, filter.WaterBodyID); err != nil {
			return filter, err
		}
	}

	return filter, nil
}

func writeExportFilterError(w http.ResponseWriter, err error, log zerolog.Logger) {
	switch {
	case errors.Is(err, errBadExportFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("failed to prepare export")
		writeError(w, http.StatusInternalServerError, "failed to prepare export")
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatCoordinate(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

//exportRow flattens a measurement for the compliance export. The sample location is
//used when both coordinates were recorded, otherwise the water body position.
func exportRow(m domain.Measurement, wb domain.WaterBody, standards domain.Standards) []string {
	lat, lon := wb.Latitude, wb.Longitude
	if m.SampleLatitude != nil && m.SampleLongitude != nil {
		lat, lon = m.SampleLatitude, m.SampleLongitude
	}

	status, alertsText := compliant, "None"
	if alerts := m.Alerts(standards); len(alerts) > 0 {
		status, alertsText = nonCompliant, strings.Join(alerts, "; ")
	}

	return []string{
		wb.Name,
		wb.Type.DisplayName(),
		formatCoordinate(lat),
		formatCoordinate(lon),
		m.MeasuredAt.UTC().Format(exportTimeLayout),
		m.MeasuredBy,
		formatFloat(m.PH),
		formatFloat(m.DissolvedOxygen),
		formatFloat(m.Temperature),
		formatFloat(m.Turbidity),
		formatFloat(m.Nitrates),
		formatFloat(m.Phosphates),
		strconv.Itoa(m.EColiCount),
		status,
		alertsText,
		m.Notes,
	}
}

func newExportMeasurementsHandler(db database.Datastore, standards domain.Standards, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		filter, err := exportFilterFromRequest(ctx, db, r)
		if err != nil {
			writeExportFilterError(w, err, log)
			return
		}

		measurements, err := db.QueryMeasurements(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("failed to query measurements for export")
			writeError(w, http.StatusInternalServerError, "failed to query measurements")
			return
		}

		bodies, err := db.GetAllWaterBodies(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to retrieve water bodies for export")
			writeError(w, http.StatusInternalServerError, "failed to retrieve water bodies")
			return
		}
		byID := lo.KeyBy(bodies, func(wb domain.WaterBody) string { return wb.ID })

		filename := fmt.Sprintf("waterquality_export_%s.csv", time.Now().UTC().Format("20060102_150405"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)

		writer := csv.NewWriter(w)
		if err = writer.Write(exportHeaders); err != nil {
			log.Error().Err(err).Msg("failed to write export header")
			return
		}

		for _, m := range measurements {
			if err = writer.Write(exportRow(m, byID[m.WaterBodyID], standards)); err != nil {
				log.Error().Err(err).Msg("failed to write export row")
				return
			}
		}

		writer.Flush()
		if err = writer.Error(); err != nil {
			log.Error().Err(err).Msg("failed to flush export")
			return
		}

		log.Info().Msgf("exported %d measurements", len(measurements))
	}
}

type exportSummary struct {
	ExportDate   time.Time                  `json:"exportDate"`
	Total        int                        `json:"totalMeasurements"`
	Compliant    int                        `json:"compliantMeasurements"`
	NonCompliant int                        `json:"nonCompliantMeasurements"`
	Standards    []domain.StandardReference `json:"standards"`
}

func newExportSummaryHandler(db database.Datastore, standards domain.Standards, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		filter, err := exportFilterFromRequest(ctx, db, r)
		if err != nil {
			writeExportFilterError(w, err, log)
			return
		}

		measurements, err := db.QueryMeasurements(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("failed to query measurements for export summary")
			writeError(w, http.StatusInternalServerError, "failed to query measurements")
			return
		}

		ok := lo.CountBy(measurements, func(m domain.Measurement) bool {
			return !m.HasAlerts(standards)
		})

		writeJSON(w, http.StatusOK, "application/json", exportSummary{
			ExportDate:   time.Now().UTC(),
			Total:        len(measurements),
			Compliant:    ok,
			NonCompliant: len(measurements) - ok,
			Standards:    standards.Reference(),
		})
	}
}
