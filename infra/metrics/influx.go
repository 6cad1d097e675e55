package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/regiondispatch/core/metrics"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/infra/logger"
)

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCallCompleted writes one call_completed point.
func (s *InfluxSink) RecordCallCompleted(ev coremetrics.CallEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("call_completed").
		AddTag("zone_id", ev.ZoneID).
		AddTag("scenario", ev.Scenario).
		AddTag("priority", ev.Priority.String()).
		AddTag("closure", ev.Closure).
		AddField("call_id", ev.CallID).
		AddField("units", ev.Units).
		AddField("escalated", ev.Escalated).
		AddField("response_s", round3(ev.ResponseTime.Seconds())).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes one unit_assigned point.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("unit_assigned").
		AddTag("unit_id", ev.UnitID).
		AddTag("priority", ev.Priority.String()).
		AddTag("primary", strconv.FormatBool(ev.Primary)).
		AddField("call_id", ev.CallID).
		AddField("preempted", ev.Preempted).
		AddField("distance", round3(ev.Distance)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordQueueDepth writes one point per tier.
func (s *InfluxSink) RecordQueueDepth(depth map[model.Priority]int, at time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(model.Priorities))
	for _, prio := range model.Priorities {
		points = append(points, write.NewPointWithMeasurement("queue_depth").
			AddTag("priority", prio.String()).
			AddField("calls", depth[prio]).
			SetTime(at))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordCrimeLevel writes the rolled level of a period.
func (s *InfluxSink) RecordCrimeLevel(ev coremetrics.CrimeLevelEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("crime_level").
		AddTag("period", ev.Period.String()).
		AddTag("level", ev.Level.String()).
		AddField("value", int(ev.Level)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
