package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "supportchat"

// Metrics holds all support widget metric instruments.
type Metrics struct {
	PollTicks        metric.Int64Counter
	PollFailures     metric.Int64Counter
	PollDuration     metric.Float64Histogram
	MessagesReceived metric.Int64Counter
	MessagesSent     metric.Int64Counter
	SendFailures     metric.Int64Counter
	Uploads          metric.Int64Counter
	UploadsRejected  metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.Meter(meterName))
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetricsFrom(noop.NewMeterProvider().Meter(meterName))
	return m
}

// NewMetricsFrom creates all metric instruments on meter.
func NewMetricsFrom(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PollTicks, err = meter.Int64Counter("supportchat.poll.ticks",
		metric.WithDescription("Number of message polls issued"))
	if err != nil {
		return nil, err
	}

	m.PollFailures, err = meter.Int64Counter("supportchat.poll.failures",
		metric.WithDescription("Number of message polls that failed"))
	if err != nil {
		return nil, err
	}

	m.PollDuration, err = meter.Float64Histogram("supportchat.poll.duration_seconds",
		metric.WithDescription("Message poll round trip in seconds"))
	if err != nil {
		return nil, err
	}

	m.MessagesReceived, err = meter.Int64Counter("supportchat.messages.received",
		metric.WithDescription("Number of new messages delivered by polling"))
	if err != nil {
		return nil, err
	}

	m.MessagesSent, err = meter.Int64Counter("supportchat.messages.sent",
		metric.WithDescription("Number of text messages sent"))
	if err != nil {
		return nil, err
	}

	m.SendFailures, err = meter.Int64Counter("supportchat.messages.send_failures",
		metric.WithDescription("Number of text messages that failed to send"))
	if err != nil {
		return nil, err
	}

	m.Uploads, err = meter.Int64Counter("supportchat.uploads",
		metric.WithDescription("Number of attachment uploads by outcome"))
	if err != nil {
		return nil, err
	}

	m.UploadsRejected, err = meter.Int64Counter("supportchat.uploads.rejected",
		metric.WithDescription("Number of attachments rejected locally for size"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPoll records one poll round trip and the number of new messages.
func (m *Metrics) RecordPoll(ctx context.Context, d time.Duration, received int, err error) {
	m.PollTicks.Add(ctx, 1)
	m.PollDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.PollFailures.Add(ctx, 1)
		return
	}
	if received > 0 {
		m.MessagesReceived.Add(ctx, int64(received))
	}
}

// RecordSend records a send attempt.
func (m *Metrics) RecordSend(ctx context.Context, err error) {
	if err != nil {
		m.SendFailures.Add(ctx, 1)
		return
	}
	m.MessagesSent.Add(ctx, 1)
}

// RecordUpload records an upload attempt.
func (m *Metrics) RecordUpload(ctx context.Context, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
