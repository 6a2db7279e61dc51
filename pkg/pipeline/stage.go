package pipeline

import (
	"context"
)

// Stage names as they appear in logs, traces and metrics.
const (
	StageReferencePoint = "reference_point"
	StageDirectionAngle = "direction_angle"
	StageObstruction    = "obstruction"
	StageEncode         = "encode"
	StageModel          = "model"
	StageMerge          = "merge"
	StageStats          = "stats"
)

// StageRequest is one outbound call produced by a stage's Parse. Window is
// the fan-out key the executor threads back into the resulting delta; it is
// empty for single requests. Body is the JSON payload; Image carries the
// encoded PNG for the multipart model call.
type StageRequest struct {
	Window string
	Body   map[string]interface{}
	Image  []byte
}

// Stage is one pipeline step bound to a downstream service. Parse derives
// the stage's outbound requests from the accumulator; returning zero
// requests skips the stage. Execute sends one request and returns the delta
// to merge back in. Execute must not touch the accumulator: merging is the
// executor's job, after every sibling task has finished.
type Stage interface {
	Name() string
	Parse(acc *Accumulator) ([]*StageRequest, error)
	Execute(ctx context.Context, req *StageRequest) (*Delta, error)
}
