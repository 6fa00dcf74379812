package databox

import (
	"time"

	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
)

type Option func(*Databox)

func WithLogger(l logger.Logger) Option {
	return func(d *Databox) {
		d.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(d *Databox) {
		d.metrics = r
	}
}

// WithTimeout bounds outbound calls (storage, facilitator) and shutdown.
func WithTimeout(t time.Duration) Option {
	return func(d *Databox) {
		d.timeout = t
	}
}
