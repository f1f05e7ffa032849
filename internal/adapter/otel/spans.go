package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "supportchat"

// StartOpenSpan starts a span for opening the widget.
func StartOpenSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "widget.open")
}

// StartPollSpan starts a span for one poll tick.
func StartPollSpan(ctx context.Context, conversationID string, lastSeenID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "widget.poll",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int64("message.last_seen_id", lastSeenID),
		),
	)
}

// StartSendSpan starts a span for sending a text message.
func StartSendSpan(ctx context.Context, conversationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "widget.send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
		),
	)
}

// StartUploadSpan starts a span for an attachment upload.
func StartUploadSpan(ctx context.Context, conversationID, fileName string, size int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "widget.upload",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("file.name", fileName),
			attribute.Int64("file.size", size),
		),
	)
}
