package main

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/nerrad567/imagepub/internal/image"
	"github.com/nerrad567/imagepub/internal/infrastructure/config"
	"github.com/nerrad567/imagepub/internal/infrastructure/influxdb"
	"github.com/nerrad567/imagepub/internal/infrastructure/logging"
	"github.com/nerrad567/imagepub/internal/publisher"
)

// influxRecorder writes one InfluxDB point per file outcome.
type influxRecorder struct {
	client *influxdb.Client
}

func (r *influxRecorder) RecordPublished(msg *image.Message) {
	r.client.WritePublishEvent(influxdb.OutcomePublished,
		msg.Properties[image.PropertyFilename], msg.ContentType(), len(msg.Body))
}

func (r *influxRecorder) RecordSkipped(file image.File, _ error) {
	r.client.WritePublishEvent(influxdb.OutcomeSkipped, file.Name, "", 0)
}

func (r *influxRecorder) RecordFailed(ev publisher.FailureEvent) {
	filename := ev.Topic[strings.LastIndex(ev.Topic, "/")+1:]
	r.client.WritePublishEvent(influxdb.OutcomeFailed, filename, image.ContentType(filename), 0)
}

// pushMetrics sends the run's metrics to a Prometheus Pushgateway when
// one is configured.
func pushMetrics(cfg *config.Config, registry *prometheus.Registry, log *logging.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}

	err := push.New(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job).
		Gatherer(registry).
		Grouping("vpn", cfg.Broker.VPN).
		Push()
	if err != nil {
		log.Warn("pushing metrics failed", "url", cfg.Metrics.PushgatewayURL, "error", err)
		return
	}
	log.Debug("metrics pushed", "url", cfg.Metrics.PushgatewayURL, "job", cfg.Metrics.Job)
}
