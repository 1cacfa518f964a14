package webhook

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	pkgcel "hookrelay/pkg/cel"
	"hookrelay/pkg/models"
)

type skipRule struct {
	name    string
	program cel.Program
}

// Filter acknowledges events matching any configured skip rule without
// running a handler or touching the tracker.
type Filter struct {
	evaluator *pkgcel.Evaluator
	rules     []skipRule
	logger    logger.Logger
}

func NewFilter(rules []config.SkipRule, log logger.Logger) (*Filter, error) {
	evaluator, err := pkgcel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	f := &Filter{evaluator: evaluator, logger: log}
	for i, rule := range rules {
		program, err := evaluator.CompileFilter(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("skip rule %d (%s): %w", i, rule.Name, err)
		}
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}
		f.rules = append(f.rules, skipRule{name: name, program: program})
	}
	return f, nil
}

// Match returns the name of the first rule that matches evt. A rule that
// fails to evaluate is logged and treated as not matching.
func (f *Filter) Match(ctx context.Context, evt *models.Event) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, rule := range f.rules {
		matched, err := f.evaluator.Evaluate(ctx, rule.program, evt)
		if err != nil {
			f.logger.WarnwCtx(ctx, "Skip rule evaluation failed", "rule", rule.name, "error", err)
			continue
		}
		if matched {
			return rule.name, true
		}
	}
	return "", false
}

func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}
