package scoring

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/quantra/internal/decision"
	"github.com/opensource-finance/quantra/internal/domain"
)

// Variable declares a fact available to rule expressions.
type Variable struct {
	Name string
	Type *cel.Type
}

// Band maps a range of rule points to a labelled outcome.
// Lower is inclusive and Upper exclusive; a nil Upper is unbounded.
type Band struct {
	LowerLimit *float64
	UpperLimit *float64

	// Reason is the human label of the outcome, e.g. "High Transaction Amount".
	Reason string
	Impact domain.Level

	// Description is a text/template rendered against the explanation data.
	Description string
}

// Rule is one point-producing CEL expression.
type Rule struct {
	ID         string
	Name       string
	Expression string

	// Features lists the vector slots the rule reads.
	Features []string

	Bands []Band
}

// RuleSet is a named table of rules over a fixed set of facts.
type RuleSet struct {
	Name      string
	Variables []Variable

	// Facts turns a feature vector into the activation of the rules.
	Facts func(domain.FeatureVector) map[string]any

	Rules []Rule
}

// Hit is a rule that produced points.
type Hit struct {
	RuleID   string
	Name     string
	Points   float64
	Reason   string
	Impact   domain.Level
	Features []string

	description *template.Template
}

// Describe renders the hit's description against data. A hit without a
// description template falls back to its reason.
func (h Hit) Describe(data map[string]any) string {
	if h.description == nil {
		return h.Reason
	}
	var buf bytes.Buffer
	if err := h.description.Execute(&buf, data); err != nil {
		return h.Reason
	}
	return buf.String()
}

// Evaluation is the outcome of running a rule set.
type Evaluation struct {
	// Total is the unclamped sum of points.
	Total float64
	Hits  []Hit

	// Errors counts rules that failed to evaluate and contributed nothing.
	Errors int
}

// Score returns the clamped total.
func (e Evaluation) Score() float64 {
	return decision.Clamp(e.Total)
}

type compiledRule struct {
	rule    Rule
	program cel.Program
	bands   []compiledBand
}

type compiledBand struct {
	band        Band
	description *template.Template
}

// RuleScorer is the deterministic point-accumulation scorer. It is built
// once and safe for concurrent use.
type RuleScorer struct {
	name  string
	facts func(domain.FeatureVector) map[string]any
	rules []*compiledRule
}

// NewRuleScorer compiles every rule of the set.
func NewRuleScorer(set RuleSet) (*RuleScorer, error) {
	if set.Facts == nil {
		return nil, fmt.Errorf("rule set %s: facts function is required", set.Name)
	}

	opts := make([]cel.EnvOption, 0, len(set.Variables))
	for _, v := range set.Variables {
		opts = append(opts, cel.Variable(v.Name, v.Type))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	s := &RuleScorer{
		name:  set.Name,
		facts: set.Facts,
		rules: make([]*compiledRule, 0, len(set.Rules)),
	}

	for _, r := range set.Rules {
		compiled, err := compileRule(env, r)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, compiled)
	}

	return s, nil
}

// MustRuleScorer is NewRuleScorer for the built-in sets, which are known to compile.
func MustRuleScorer(set RuleSet) *RuleScorer {
	s, err := NewRuleScorer(set)
	if err != nil {
		panic(err)
	}
	return s
}

func compileRule(env *cel.Env, r Rule) (*compiledRule, error) {
	ast, issues := env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DoubleType) && !out.IsExactType(cel.IntType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", r.ID, out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}

	compiled := &compiledRule{rule: r, program: program}
	for _, b := range r.Bands {
		cb := compiledBand{band: b}
		if b.Description != "" {
			tmpl, err := template.New(r.ID).Option("missingkey=zero").Parse(b.Description)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid description template: %w", r.ID, err)
			}
			cb.description = tmpl
		}
		compiled.bands = append(compiled.bands, cb)
	}

	return compiled, nil
}

// Name returns the rule set name.
func (s *RuleScorer) Name() string {
	return s.name
}

// RulesCount returns the number of compiled rules.
func (s *RuleScorer) RulesCount() int {
	return len(s.rules)
}

// Score returns the clamped rule total. It never fails.
func (s *RuleScorer) Score(ctx context.Context, fv domain.FeatureVector) (float64, error) {
	return s.Evaluate(ctx, fv).Score(), nil
}

// Evaluate runs every rule against the vector in declaration order.
func (s *RuleScorer) Evaluate(ctx context.Context, fv domain.FeatureVector) Evaluation {
	return s.EvaluateFacts(ctx, s.facts(fv))
}

// EvaluateFacts runs every rule against an explicit activation.
func (s *RuleScorer) EvaluateFacts(ctx context.Context, facts map[string]any) Evaluation {
	var eval Evaluation

	for _, r := range s.rules {
		out, _, err := r.program.Eval(facts)
		if err != nil {
			slog.WarnContext(ctx, "rule evaluation failed",
				"rule_set", s.name,
				"rule_id", r.rule.ID,
				"error", err,
			)
			eval.Errors++
			continue
		}

		points := toPoints(out)
		if points == 0 {
			continue
		}
		eval.Total += points

		hit := Hit{
			RuleID:   r.rule.ID,
			Name:     r.rule.Name,
			Points:   points,
			Reason:   r.rule.Name,
			Impact:   domain.LevelLow,
			Features: r.rule.Features,
		}
		if band := matchBand(points, r.bands); band != nil {
			hit.Reason = band.band.Reason
			hit.Impact = band.band.Impact
			hit.description = band.description
		}
		eval.Hits = append(eval.Hits, hit)
	}

	return eval
}

// toPoints converts a CEL value to rule points.
func toPoints(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the first band containing the points.
func matchBand(points float64, bands []compiledBand) *compiledBand {
	for i := range bands {
		b := bands[i].band
		if b.LowerLimit != nil && points < *b.LowerLimit {
			continue
		}
		if b.UpperLimit != nil && points >= *b.UpperLimit {
			continue
		}
		return &bands[i]
	}
	return nil
}

func limit(v float64) *float64 {
	return &v
}
