package operators

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/models"
)

// TransformFunc shapes a payload
type TransformFunc func(models.Payload) (models.Payload, error)

// ProcessOperator applies Transform to the result of Upstream
type ProcessOperator struct {
	Upstream  string
	Transform TransformFunc
}

func (o *ProcessOperator) Execute(ctx context.Context, tc *TaskContext) (models.Payload, error) {
	raw, err := tc.XComPull(o.Upstream)
	if err != nil {
		return nil, err
	}

	processed, err := o.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to transform payload from %s: %w", o.Upstream, err)
	}

	zerolog.Ctx(ctx).Info().
		Int("input_bytes", len(raw)).
		Int("output_bytes", len(processed)).
		Msg("Processed payload")

	return processed, nil
}
