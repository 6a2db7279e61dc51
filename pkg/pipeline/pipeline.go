package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/observability"
	"github.com/luxsim/helio/pkg/services"
)

// Endpoint identifies one gateway operation. Each endpoint maps to a fixed,
// topologically ordered stage list.
type Endpoint string

const (
	EndpointSimulate       Endpoint = "simulate"
	EndpointEncode         Endpoint = "encode"
	EndpointEncodeRaw      Endpoint = "encode_raw"
	EndpointObstruction    Endpoint = "obstruction"
	EndpointObstructionAll Endpoint = "obstruction_all"
	EndpointHorizon        Endpoint = "horizon"
	EndpointZenith         Endpoint = "zenith"
	EndpointReferencePoint Endpoint = "get-reference-point"
	EndpointDirection      Endpoint = "calculate-direction"
	EndpointMerge          Endpoint = "merge"
	EndpointStats          Endpoint = "stats"
)

// Pipeline binds the stages to their downstream services and runs the stage
// list for an endpoint against a request-local accumulator.
type Pipeline struct {
	reference   Stage
	direction   Stage
	obstruction Stage
	encode      Stage
	model       Stage
	merge       Stage
	stats       Stage

	metrics observability.Metrics
	tracer  trace.Tracer
}

// New wires the pipeline stages to the registered downstream services.
func New(reg *services.Registry, metrics observability.Metrics) (*Pipeline, error) {
	lookup := func(name string) (*services.Service, error) {
		svc, ok := reg.Get(name)
		if !ok {
			return nil, errdefs.New(errdefs.KindInternal, "service %q not registered", name)
		}
		return svc, nil
	}

	obstruction, err := lookup("obstruction")
	if err != nil {
		return nil, err
	}
	encoder, err := lookup("encoder")
	if err != nil {
		return nil, err
	}
	model, err := lookup("model")
	if err != nil {
		return nil, err
	}
	merger, err := lookup("merger")
	if err != nil {
		return nil, err
	}
	stats, err := lookup("stats")
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		reference:   &referencePointStage{svc: obstruction},
		direction:   &directionAngleStage{svc: obstruction},
		obstruction: &obstructionStage{svc: obstruction},
		encode:      &encodeStage{svc: encoder},
		model:       &modelStage{svc: model},
		merge:       &mergeStage{svc: merger},
		stats:       &statsStage{svc: stats},
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/luxsim/helio/pkg/pipeline"),
	}, nil
}

// Run executes the endpoint's stage list in order, mutating the accumulator
// as each stage merges its deltas. The first stage error aborts the run;
// later stages are not started.
func (p *Pipeline) Run(ctx context.Context, endpoint Endpoint, acc *Accumulator) error {
	stages, err := p.stagesFor(endpoint)
	if err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, observability.SpanPipeline,
		trace.WithAttributes(attribute.String(observability.AttrEndpoint, string(endpoint))))
	defer span.End()

	for _, stage := range stages {
		if err := p.runStage(ctx, stage, acc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

// runStage parses the stage's outbound requests, executes them concurrently
// and merges the resulting deltas. Sibling tasks always run to completion: a
// failing window does not cancel the others mid-flight. On failure nothing
// is merged, so an error never leaves partial stage output behind; the error
// reported is the first failing request in request order.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, acc *Accumulator) (err error) {
	reqs, err := stage.Parse(acc)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		slog.Debug("Skipping stage, nothing to request", "stage", stage.Name())
		return nil
	}

	ctx, span := p.tracer.Start(ctx, observability.SpanStage, trace.WithAttributes(
		attribute.String(observability.AttrStage, stage.Name()),
		attribute.Int(observability.AttrFanOut, len(reqs)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordStage(ctx, stage.Name(), len(reqs), time.Since(start), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	deltas := make([]*Delta, len(reqs))
	errs := make([]error, len(reqs))

	g := new(errgroup.Group)
	for i, req := range reqs {
		g.Go(func() error {
			deltas[i], errs[i] = stage.Execute(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for i, execErr := range errs {
		if execErr != nil {
			span.SetAttributes(
				attribute.String(observability.AttrWindow, reqs[i].Window),
				attribute.String(observability.AttrErrorKind, errdefs.AsError(execErr).Kind.String()),
			)
			slog.Error("Pipeline stage failed",
				"stage", stage.Name(),
				"window", reqs[i].Window,
				"fan_out", len(reqs),
				"error", execErr)
			return execErr
		}
	}

	for _, delta := range deltas {
		acc.Merge(delta)
	}
	return nil
}

func (p *Pipeline) stagesFor(endpoint Endpoint) ([]Stage, error) {
	switch endpoint {
	case EndpointDirection:
		return []Stage{p.direction}, nil
	case EndpointReferencePoint:
		return []Stage{p.reference}, nil
	case EndpointObstruction, EndpointHorizon, EndpointZenith:
		return []Stage{p.obstruction}, nil
	case EndpointObstructionAll:
		return []Stage{p.reference, p.direction, p.obstruction}, nil
	case EndpointEncode:
		return []Stage{p.reference, p.direction, p.obstruction, p.encode}, nil
	case EndpointEncodeRaw:
		return []Stage{p.encode}, nil
	case EndpointSimulate:
		return []Stage{p.reference, p.direction, p.obstruction, p.encode, p.model, p.merge}, nil
	case EndpointMerge:
		return []Stage{p.merge}, nil
	case EndpointStats:
		return []Stage{p.stats}, nil
	default:
		return nil, errdefs.New(errdefs.KindInternal, "unknown pipeline endpoint %q", endpoint)
	}
}
