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

	"github.com/kilianp07/fleetassign/core/events"
	coremetrics "github.com/kilianp07/fleetassign/core/metrics"
	"github.com/kilianp07/fleetassign/infra/logger"
)

// InfluxConfig locates an InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes run records to an InfluxDB instance using the official client.
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

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
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

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(points ...*write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordRunResult writes one optimisation_run point.
func (s *InfluxSink) RecordRunResult(res coremetrics.RunResult) error {
	p := write.NewPointWithMeasurement("optimisation_run").
		AddTag("run_id", res.RunID).
		AddTag("strategy", res.Strategy).
		AddTag("feasible", strconv.FormatBool(res.Feasible))
	if res.Mode != "" {
		p = p.AddTag("mode", res.Mode)
	}
	p = p.AddField("duration_ms", round3(res.Duration.Seconds()*1000)).
		AddField("iterations", res.Iterations).
		AddField("improvements", res.Improvements)
	addFinite(p, "objective", res.Objective)
	return s.write(p.SetTime(res.Time))
}

// RecordImprovement writes a multistart_improvement point.
func (s *InfluxSink) RecordImprovement(ev events.Improvement) error {
	p := write.NewPointWithMeasurement("multistart_improvement").
		AddTag("run_id", ev.RunID).
		AddField("iteration", ev.Iteration).
		AddField("beta", round3(ev.Beta)).
		AddField("value", round3(ev.Value)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordGeneration writes a ga_generation point. Infinite costs are left out.
func (s *InfluxSink) RecordGeneration(ev events.Generation) error {
	p := write.NewPointWithMeasurement("ga_generation").
		AddTag("run_id", ev.RunID).
		AddField("generation", ev.Generation).
		AddField("feasible", ev.Feasible).
		AddField("population", ev.Population)
	addFinite(p, "best_cost", ev.BestCost)
	addFinite(p, "mean_cost", ev.MeanCost)
	return s.write(p.SetTime(ev.Time))
}

// RecordFleetLoads writes one fleet_load point per fleet.
func (s *InfluxSink) RecordFleetLoads(loads []coremetrics.FleetLoad) error {
	points := make([]*write.Point, 0, len(loads))
	for _, l := range loads {
		points = append(points, write.NewPointWithMeasurement("fleet_load").
			AddTag("run_id", l.RunID).
			AddTag("fleet_id", strconv.Itoa(l.FleetID)).
			AddField("assigned", round3(l.Assigned)).
			AddField("customers", l.Customers).
			AddField("min_volume", round3(l.MinVolume)).
			AddField("max_volume", round3(l.MaxVolume)).
			SetTime(l.Time))
	}
	if len(points) == 0 {
		return nil
	}
	return s.write(points...)
}

func addFinite(p *write.Point, name string, v float64) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return
	}
	p.AddField(name, round3(v))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
