// Package telemetry adapts OpenTelemetry tracing to the fsm Trace hook.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const ScopeName = "github.com/stateforward/go-fsm"

// New returns a Trace hook that opens one span per runtime step. ids are
// recorded as the fsm.ids attribute; an error passed to the end func marks
// the span as failed. A nil tracer uses the global provider.
func New(tracer trace.Tracer) func(ctx context.Context, step string, ids ...string) func(...any) {
	if tracer == nil {
		tracer = otel.Tracer(ScopeName)
	}
	return func(ctx context.Context, step string, ids ...string) func(...any) {
		_, span := tracer.Start(ctx, "fsm."+step, trace.WithAttributes(
			attribute.String("fsm.step", step),
			attribute.StringSlice("fsm.ids", ids),
		))
		return func(results ...any) {
			defer span.End()
			for _, result := range results {
				var err error
				switch result := result.(type) {
				case error:
					err = result
				case nil:
					continue
				default:
					err = errors.New(fmt.Sprint(result))
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
	}
}

/******* No-op provider *******/

type Provider struct {
	trace.TracerProvider
}

var (
	provider    = &Provider{}
	tracer      = &Tracer{}
	span        = &Span{}
	spanContext = trace.SpanContext{}
)

// NewProvider returns a provider whose spans record nothing, for callers
// that want the hook wired without an exporter.
func NewProvider() *Provider {
	return provider
}

func (provider *Provider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return tracer
}

type Tracer struct {
	trace.Tracer
}

func (tracer *Tracer) Start(ctx context.Context, name string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ctx, span
}

type Span struct {
	trace.Span
}

func (span *Span) End(options ...trace.SpanEndOption)                  {}
func (span *Span) AddEvent(name string, options ...trace.EventOption)  {}
func (span *Span) AddLink(link trace.Link)                             {}
func (span *Span) IsRecording() bool                                   { return false }
func (span *Span) RecordError(err error, options ...trace.EventOption) {}
func (span *Span) SetAttributes(kv ...attribute.KeyValue)              {}
func (span *Span) SetName(name string)                                 {}
func (span *Span) SetStatus(code codes.Code, description string)       {}
func (span *Span) SpanContext() trace.SpanContext                      { return spanContext }
func (span *Span) TracerProvider() trace.TracerProvider                { return provider }
