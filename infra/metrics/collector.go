package metrics

import (
	"context"

	"github.com/kilianp07/fleetassign/core/events"
	coremetrics "github.com/kilianp07/fleetassign/core/metrics"
	"github.com/kilianp07/fleetassign/infra/logger"
	"github.com/kilianp07/fleetassign/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards progress
// events to the sink recorders it implements. It stops when the context is
// canceled or the bus is closed; the returned channel is closed on exit.
func StartEventCollector(ctx context.Context, bus eventbus.Bus[events.Event], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T for run %s: %v", ev, ev.EventRunID(), err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev events.Event) error {
	switch e := ev.(type) {
	case events.Improvement:
		if r, ok := sink.(coremetrics.ImprovementRecorder); ok {
			return r.RecordImprovement(e)
		}
	case events.Generation:
		if r, ok := sink.(coremetrics.GenerationRecorder); ok {
			return r.RecordGeneration(e)
		}
	}
	return nil
}
