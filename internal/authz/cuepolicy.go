package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/lattice/internal/model"
)

//go:embed policy.cue
var policySchema string

const wildcard = "*"

// Rule is one decoded policy rule.
type Rule struct {
	Effect      string   `json:"effect"`
	Actions     []string `json:"actions"`
	Kinds       []string `json:"kinds"`
	Users       []string `json:"users"`
	Description string   `json:"description,omitempty"`
}

func (r Rule) matches(in Input) bool {
	return matchAny(r.Actions, string(in.Action)) &&
		matchAny(r.Kinds, string(in.Resource.Kind)) &&
		(matchAny(r.Users, in.Actor) || (in.ActorName != "" && matchAny(r.Users, in.ActorName)))
}

func matchAny(patterns []string, value string) bool {
	return slices.Contains(patterns, wildcard) || slices.Contains(patterns, value)
}

// CUEPolicy is an Evaluator whose rules are written in CUE.
//
// Example:
//
//	rules: [
//		{effect: "allow", users: ["root"]},
//		{effect: "deny", actions: ["DELETE", "DELETE_PROCESSOR"], kinds: ["processor"]},
//	]
type CUEPolicy struct {
	rules []Rule
}

// LoadPolicy reads and compiles a CUE policy file.
func LoadPolicy(path string) (*CUEPolicy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(src, path)
}

// ParsePolicy compiles CUE policy source. The source is unified with the
// built-in schema, so unknown rule fields and unknown rights are rejected.
func ParsePolicy(src []byte, filename string) (*CUEPolicy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(policySchema+"\n"+rightsDefinition(), cue.Filename("policy.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("policy schema: %w", err)
	}
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", filename, err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", filename, err)
	}

	var doc struct {
		Rules []Rule `json:"rules"`
	}
	if err := unified.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", filename, err)
	}
	return &CUEPolicy{rules: doc.Rules}, nil
}

// rightsDefinition renders the closed right enumeration as a CUE
// disjunction.
func rightsDefinition() string {
	rights := model.Rights()
	quoted := make([]string, len(rights))
	for i, r := range rights {
		quoted[i] = strconv.Quote(string(r))
	}
	return "#Right: " + strings.Join(quoted, " | ")
}

// Rules returns the compiled rules in evaluation order.
func (p *CUEPolicy) Rules() []Rule {
	return slices.Clone(p.rules)
}

// Evaluate implements Evaluator.
func (p *CUEPolicy) Evaluate(_ context.Context, in Input) (bool, error) {
	for _, r := range p.rules {
		if r.matches(in) {
			return r.Effect == "allow", nil
		}
	}
	return true, nil
}
