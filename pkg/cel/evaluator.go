package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"hookrelay/pkg/models"
)

// Evaluator compiles boolean CEL expressions over webhook events.
//
// Available variables: id, event_type, created, livemode, api_version,
// object (the event's data object) and previous_attributes.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("created", cel.IntType),
		cel.Variable("livemode", cel.BoolType),
		cel.Variable("api_version", cel.StringType),
		cel.Variable("object", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("previous_attributes", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

// CompileFilter type-checks expression and returns a reusable program.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) Evaluate(ctx context.Context, program cel.Program, evt *models.Event) (bool, error) {
	result, _, err := program.ContextEval(ctx, EventVars(evt))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func EventVars(evt *models.Event) map[string]interface{} {
	object := evt.Data.Object
	if object == nil {
		object = map[string]interface{}{}
	}
	previous := evt.Data.PreviousAttributes
	if previous == nil {
		previous = map[string]interface{}{}
	}

	return map[string]interface{}{
		"id":                  evt.ID,
		"event_type":          evt.Type,
		"created":             evt.Created,
		"livemode":            evt.Livemode,
		"api_version":         evt.APIVersion,
		"object":              object,
		"previous_attributes": previous,
	}
}
