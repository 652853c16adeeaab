// Package generation makes external content generation calls durable. The
// runner persists an attempt before invoking, applies results only through
// the engine, and discards results from superseded attempts.
package generation

import (
	"context"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// Invoker is the external generation call, typically an LLM invocation.
// It may take seconds to minutes; implementations must honor ctx
// cancellation. A domain-level failure is reported either through an error
// or through a NodeResult with status error, both are treated the same.
type Invoker interface {
	Invoke(ctx context.Context, node *models.Node, state models.ContextState) (models.NodeResult, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, node *models.Node, state models.ContextState) (models.NodeResult, error)

func (f InvokerFunc) Invoke(ctx context.Context, node *models.Node, state models.ContextState) (models.NodeResult, error) {
	return f(ctx, node, state)
}
