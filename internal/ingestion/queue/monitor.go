package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
)

// DepthPoller samples lane depths on an interval and exports them as gauges,
// so dashboards see queue pressure without the API being polled.
type DepthPoller struct {
	queue    *JobQueue
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

// NewDepthPoller creates a poller; Start begins sampling.
func NewDepthPoller(q *JobQueue, m *metrics.Metrics, interval time.Duration) *DepthPoller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DepthPoller{
		queue:    q,
		metrics:  m,
		interval: interval,
		logger:   logger.WithComponent("queue-monitor"),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop. It returns immediately; the loop runs
// until ctx is cancelled.
func (p *DepthPoller) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.sample(ctx)
		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("depth poller stopping")
				return
			case <-ticker.C:
				p.sample(ctx)
			}
		}
	}()
}

// Close blocks until the sampling loop has exited.
func (p *DepthPoller) Close() {
	<-p.done
}

func (p *DepthPoller) sample(ctx context.Context) {
	if !p.queue.Available() {
		return
	}
	for lane, depth := range p.queue.LaneSizes(ctx) {
		if p.metrics != nil {
			p.metrics.QueueDepth.WithLabelValues(string(lane)).Set(float64(depth))
		}
	}
}
