package core

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/najoast/stagehand/core"

// instruments records runtime activity per actor name.
type instruments struct {
	dispatchedCounter metric.Int64Counter
	rejectedCounter   metric.Int64Counter
	faultCounter      metric.Int64Counter
	restartCounter    metric.Int64Counter
	liveContexts      metric.Int64UpDownCounter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(instrumentationName)
	}

	var (
		m   instruments
		err error
	)
	if m.dispatchedCounter, err = meter.Int64Counter("stagehand.messages.dispatched",
		metric.WithDescription("Messages dispatched to actor handlers"),
		metric.WithUnit("{message}")); err != nil {
		return nil, errors.Wrap(err, "dispatched counter")
	}
	if m.rejectedCounter, err = meter.Int64Counter("stagehand.messages.rejected",
		metric.WithDescription("Non-blocking sends rejected by a full or closed mailbox"),
		metric.WithUnit("{message}")); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if m.faultCounter, err = meter.Int64Counter("stagehand.actor.faults",
		metric.WithDescription("Actor faults raised by handlers or hooks"),
		metric.WithUnit("{fault}")); err != nil {
		return nil, errors.Wrap(err, "fault counter")
	}
	if m.restartCounter, err = meter.Int64Counter("stagehand.actor.restarts",
		metric.WithDescription("Actor instances replaced by a supervisor"),
		metric.WithUnit("{restart}")); err != nil {
		return nil, errors.Wrap(err, "restart counter")
	}
	if m.liveContexts, err = meter.Int64UpDownCounter("stagehand.actor.contexts",
		metric.WithDescription("Contexts attached to arbiters"),
		metric.WithUnit("{context}")); err != nil {
		return nil, errors.Wrap(err, "contexts counter")
	}
	return &m, nil
}

func actorAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("actor", name))
}

func (m *instruments) dispatched(name string) {
	m.dispatchedCounter.Add(context.Background(), 1, actorAttr(name))
}

func (m *instruments) rejected(name string) {
	m.rejectedCounter.Add(context.Background(), 1, actorAttr(name))
}

func (m *instruments) fault(name string) {
	m.faultCounter.Add(context.Background(), 1, actorAttr(name))
}

func (m *instruments) restarted(name string) {
	m.restartCounter.Add(context.Background(), 1, actorAttr(name))
}

func (m *instruments) contextStarted(name string) {
	m.liveContexts.Add(context.Background(), 1, actorAttr(name))
}

func (m *instruments) contextStopped(name string) {
	m.liveContexts.Add(context.Background(), -1, actorAttr(name))
}
