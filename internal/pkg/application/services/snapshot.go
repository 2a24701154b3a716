package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

//DefaultSnapshotInterval is used when a snapshot service is created without a positive interval
const DefaultSnapshotInterval time.Duration = 5 * time.Minute

//SnapshotPublisher stores a GeoJSON rendering of the marker map
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, takenAt time.Time, geoJSON []byte) error
}

type SnapshotService interface {
	Shutdown()
}

//NewSnapshotService publishes a snapshot of the marker map immediately and then once every interval
func NewSnapshotService(zlog zerolog.Logger, publisher SnapshotPublisher, builder *MarkerMapBuilder, interval time.Duration) SnapshotService {
	if interval <= 0 {
		zlog.Warn().Msgf("snapshot interval %s is not positive, using %s", interval, DefaultSnapshotInterval)
		interval = DefaultSnapshotInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	ss := &snapshotServiceImpl{
		publisher: publisher,
		builder:   builder,
		interval:  interval,
		log:       zlog,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go ss.run(ctx)

	return ss
}

type snapshotServiceImpl struct {
	publisher SnapshotPublisher
	builder   *MarkerMapBuilder
	interval  time.Duration
	log       zerolog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

func (ss *snapshotServiceImpl) run(ctx context.Context) {
	defer close(ss.done)

	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()

	for {
		ss.publish(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (ss *snapshotServiceImpl) publish(ctx context.Context) {
	m, _, err := ss.builder.Build(ctx)
	if err != nil {
		ss.log.Error().Err(err).Msg("failed to build marker map")
		return
	}

	geoJSON, err := m.GeoJSON()
	if err != nil {
		ss.log.Error().Err(err).Msg("failed to encode marker map")
		return
	}

	if err = ss.publisher.PublishSnapshot(ctx, time.Now().UTC(), geoJSON); err != nil {
		ss.log.Error().Err(err).Msg("failed to publish map snapshot")
		return
	}

	ss.log.Info().Msgf("published map snapshot with %d markers", len(m.Markers))
}

func (ss *snapshotServiceImpl) Shutdown() {
	ss.cancel()
	<-ss.done
}
