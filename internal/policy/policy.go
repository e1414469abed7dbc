// Package policy filters candidate generators with user-defined rules.
// Rules are expr expressions over the candidate and query environment,
// compiled once at construction.
package policy

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
)

// Candidate describes one generator under policy evaluation.
type Candidate struct {
	Model    string   `json:"model"`
	Provider string   `json:"provider"`
	Local    bool     `json:"local"`
	Tags     []string `json:"tags,omitempty"`

	// InputCents and OutputCents are per-1K-token prices.
	InputCents  float64 `json:"input_cents"`
	OutputCents float64 `json:"output_cents"`

	// Role is "draft" or "verifier".
	Role string `json:"role"`
}

// Env is the evaluation environment for a rule: the candidate plus the
// query being routed.
type Env struct {
	Candidate
	Complexity string  `json:"complexity"`
	Difficulty float64 `json:"difficulty"`
}

// Rule is a named condition. A candidate must satisfy every rule; an empty
// or "true" condition always passes.
type Rule struct {
	Name      string `json:"name" yaml:"name"`
	Condition string `json:"condition" yaml:"condition"`
}

// Filter evaluates compiled rules against candidates.
type Filter struct {
	rules    []Rule
	programs []*vm.Program
}

// NewFilter compiles every rule eagerly, so malformed or non-boolean
// conditions fail here instead of at routing time.
func NewFilter(rules []Rule) (*Filter, error) {
	f := &Filter{
		rules:    rules,
		programs: make([]*vm.Program, len(rules)),
	}
	for i, rule := range rules {
		condition := strings.TrimSpace(rule.Condition)
		if condition == "" || condition == "true" {
			continue
		}
		program, err := expr.Compile(condition, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compiling policy rule %q: %w", rule.Name, err)
		}
		f.programs[i] = program
	}
	return f, nil
}

// Len returns the number of rules, compiled or pass-through.
func (f *Filter) Len() int {
	return len(f.rules)
}

// Allows reports whether the environment satisfies every rule. A rule that
// fails to evaluate is skipped with a warning rather than vetoing the
// candidate.
func (f *Filter) Allows(env Env) bool {
	for i, program := range f.programs {
		if program == nil {
			continue
		}
		output, err := expr.Run(program, env)
		if err != nil {
			log.Warnf("Policy rule %q failed to evaluate, skipping: %v", f.rules[i].Name, err)
			continue
		}
		allowed, ok := output.(bool)
		if !ok {
			log.Warnf("Policy rule %q returned %T, skipping", f.rules[i].Name, output)
			continue
		}
		if !allowed {
			return false
		}
	}
	return true
}

// Select returns the candidates that pass every rule for the given query
// characteristics, preserving input order.
func (f *Filter) Select(candidates []Candidate, complexity string, difficulty float64) []Candidate {
	selected := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		env := Env{Candidate: candidate, Complexity: complexity, Difficulty: difficulty}
		if f.Allows(env) {
			selected = append(selected, candidate)
		}
	}
	return selected
}
