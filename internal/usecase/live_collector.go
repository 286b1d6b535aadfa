package usecase

import (
	"context"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	applogger "AlphaPull/pkg/logger"
)

// LiveCollector drains a push stream of interval-bucketed observations
// into the raw store. The store's keyed idempotence means the stream and
// the pull adapters can cover the same bars without conflict; whichever
// lands first wins and the other is a no-op.
type LiveCollector struct {
	stream  drepo.ObservationStream
	raw     drepo.RawStore
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewLiveCollector(stream drepo.ObservationStream, raw drepo.RawStore, metrics drepo.Metrics, l *applogger.Logger) *LiveCollector {
	return &LiveCollector{stream: stream, raw: raw, metrics: metrics, l: l}
}

// IsConnected reports whether the underlying stream is up.
func (c *LiveCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *LiveCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	obsCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, obsCh, errCh)
	return nil
}

func (c *LiveCollector) Close() error {
	return c.stream.Close()
}

func (c *LiveCollector) consume(ctx context.Context, obsCh <-chan models.Observation, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err != nil {
				c.metrics.RecordError("stream")
				if c.l != nil {
					c.l.Warn("live stream error", applogger.Error(err))
				}
			}
		case obs, ok := <-obsCh:
			if !ok {
				return
			}
			appended, err := c.raw.Append(ctx, []models.Observation{obs})
			if err != nil {
				c.metrics.RecordError("storage")
				if c.l != nil {
					c.l.Warn("live append failed", applogger.String("symbol", obs.Symbol), applogger.Error(err))
				}
				continue
			}
			if appended > 0 {
				c.metrics.RecordLastClose(obs.Symbol, obs.Close)
			}
		}
	}
}
