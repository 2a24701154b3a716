package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

const waterBodyColumns string = `id, name, water_body_type, latitude, longitude, description, regulatory_body,
	monitoring_start_date, is_active, created_at, updated_at`

const measurementColumns string = `id::text, water_body_id, measured_at, ph, dissolved_oxygen, temperature,
	turbidity, nitrates, phosphates, ecoli_count, measured_by, notes, sample_latitude, sample_longitude, created_at`

//NewPostgresDatastore connects to databaseURL, applies pending migrations and returns a Datastore
func NewPostgresDatastore(ctx context.Context, databaseURL string, log zerolog.Logger) (Datastore, func(), error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info().Msg("connected to database and applied migrations")

	return &postgresDB{pool: pool}, pool.Close, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

type postgresDB struct {
	pool *pgxpool.Pool
}

func scanWaterBody(row pgx.Row) (*domain.WaterBody, error) {
	wb := &domain.WaterBody{}
	var typ string

	err := row.Scan(&wb.ID, &wb.Name, &typ, &wb.Latitude, &wb.Longitude, &wb.Description, &wb.RegulatoryBody,
		&wb.MonitoringStartDate, &wb.Active, &wb.DateCreated, &wb.DateModified)
	if err != nil {
		return nil, err
	}

	wb.Type = domain.WaterBodyType(typ)
	return wb, nil
}

func scanMeasurement(row pgx.Row) (*domain.Measurement, error) {
	m := &domain.Measurement{}

	err := row.Scan(&m.ID, &m.WaterBodyID, &m.MeasuredAt, &m.PH, &m.DissolvedOxygen, &m.Temperature,
		&m.Turbidity, &m.Nitrates, &m.Phosphates, &m.EColiCount, &m.MeasuredBy, &m.Notes,
		&m.SampleLatitude, &m.SampleLongitude, &m.DateCreated)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (db *postgresDB) GetWaterBodyFromID(ctx context.Context, id string) (*domain.WaterBody, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+waterBodyColumns+` FROM water_bodies WHERE id = $1`, id)

	wb, err := scanWaterBody(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("water body %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query water body %s: %w", id, err)
	}

	return wb, nil
}

func (db *postgresDB) GetAllWaterBodies(ctx context.Context) ([]domain.WaterBody, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+waterBodyColumns+` FROM water_bodies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query water bodies: %w", err)
	}
	defer rows.Close()

	result := []domain.WaterBody{}
	for rows.Next() {
		wb, err := scanWaterBody(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan water body: %w", err)
		}
		result = append(result, *wb)
	}

	return result, rows.Err()
}

func (db *postgresDB) UpsertWaterBodies(ctx context.Context, bodies ...domain.WaterBody) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for _, wb := range bodies {
		if wb.ID == "" {
			return fmt.Errorf("water body %q has no id", wb.Name)
		}

		if wb.DateCreated.IsZero() {
			wb.DateCreated = now
		}
		if wb.DateModified.IsZero() {
			wb.DateModified = now
		}
		if wb.MonitoringStartDate.IsZero() {
			wb.MonitoringStartDate = now
		}

		batch.Queue(`INSERT INTO water_bodies (`+waterBodyColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				water_body_type = EXCLUDED.water_body_type,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				description = EXCLUDED.description,
				regulatory_body = EXCLUDED.regulatory_body,
				is_active = EXCLUDED.is_active,
				updated_at = EXCLUDED.updated_at`,
			wb.ID, wb.Name, string(wb.Type), wb.Latitude, wb.Longitude, wb.Description, wb.RegulatoryBody,
			wb.MonitoringStartDate, wb.Active, wb.DateCreated, wb.DateModified)
	}

	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert water bodies: %w", err)
	}

	return tx.Commit(ctx)
}

func (db *postgresDB) AddMeasurement(ctx context.Context, m domain.Measurement) error {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return fmt.Errorf("measurement id %q is not a uuid: %w", m.ID, err)
	}

	if m.DateCreated.IsZero() {
		m.DateCreated = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE water_bodies SET updated_at = $2 WHERE id = $1`, m.WaterBodyID, m.DateCreated)
	if err != nil {
		return fmt.Errorf("failed to touch water body %s: %w", m.WaterBodyID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("water body %s: %w", m.WaterBodyID, ErrNotFound)
	}

	_, err = tx.Exec(ctx, `INSERT INTO measurements (id, water_body_id, measured_at, ph, dissolved_oxygen, temperature,
		turbidity, nitrates, phosphates, ecoli_count, measured_by, notes, sample_latitude, sample_longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		id, m.WaterBodyID, m.MeasuredAt, m.PH, m.DissolvedOxygen, m.Temperature,
		m.Turbidity, m.Nitrates, m.Phosphates, m.EColiCount, m.MeasuredBy, m.Notes,
		m.SampleLatitude, m.SampleLongitude, m.DateCreated)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}

	return tx.Commit(ctx)
}

func (db *postgresDB) queryMeasurements(ctx context.Context, sql string, args ...any) ([]domain.Measurement, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	result := []domain.Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		result = append(result, *m)
	}

	return result, rows.Err()
}

func (db *postgresDB) GetMeasurements(ctx context.Context, waterBodyID string, limit int) ([]domain.Measurement, error) {
	if limit <= 0 {
		return db.queryMeasurements(ctx,
			`SELECT `+measurementColumns+` FROM measurements WHERE water_body_id = $1 ORDER BY measured_at DESC`,
			waterBodyID)
	}

	return db.queryMeasurements(ctx,
		`SELECT `+measurementColumns+` FROM measurements WHERE water_body_id = $1 ORDER BY measured_at DESC LIMIT $2`,
		waterBodyID, limit)
}

func (db *postgresDB) GetMeasurementsSince(ctx context.Context, since time.Time) ([]domain.Measurement, error) {
	return db.queryMeasurements(ctx,
		`SELECT `+measurementColumns+` FROM measurements WHERE measured_at >= $1 ORDER BY measured_at DESC`,
		since)
}

func (db *postgresDB) QueryMeasurements(ctx context.Context, filter MeasurementFilter) ([]domain.Measurement, error) {
	where := []string{}
	args := []any{}

	if filter.WaterBodyID != "" {
		args = append(args, filter.WaterBodyID)
		where = append(where, fmt.Sprintf("water_body_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("measured_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("measured_at <= $%d", len(args)))
	}

	sql := `SELECT ` + measurementColumns + ` FROM measurements`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}

	return db.queryMeasurements(ctx, sql+` ORDER BY measured_at DESC`, args...)
}
