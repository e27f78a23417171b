package notify

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Policy decides which events are broadcast to administrators. Rules are CEL
// expressions over a map named event, e.g.
//
//	event.type == "alert.created" && event.risk_score >= 50.0
type Policy struct {
	rule    string
	program cel.Program
}

// NewPolicy compiles rule. The rule must evaluate to a bool.
func NewPolicy(rule string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile broadcast rule: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("broadcast rule must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build broadcast rule: %w", err)
	}
	return &Policy{rule: rule, program: program}, nil
}

// Rule returns the source expression.
func (p *Policy) Rule() string { return p.rule }

// Matches evaluates the rule. A missing field or a non-bool result counts
// as no match.
func (p *Policy) Matches(ctx context.Context, env *Envelope) bool {
	out, _, err := p.program.ContextEval(ctx, map[string]any{"event": env.Activation()})
	if err != nil {
		return false
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok
}
