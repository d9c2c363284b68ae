// Package policy gates commands on shared replay sessions.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA share-policy engine. It decides which commands a
// collaborator may issue on a replay in collaborative mode; the owner is
// never restricted.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.replay_share.decision"),
		rego.Module("replay_share.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the share policy. Input keys: command, actor, owner,
// collaborators. Returns "allow" or "deny".
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; no result means it failed to.
		return "deny", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "deny", nil
}

// DefaultPolicy is the default share policy: the owner may do anything;
// registered collaborators may drive playback and edit markers but not
// close the replay or manage the collaborator list; everyone else is
// denied.
const DefaultPolicy = `
package replay_share

import rego.v1

default decision := "deny"

decision := "allow" if input.actor == input.owner

decision := "allow" if {
	input.actor in input.collaborators
	not input.command in owner_only
}

owner_only := {"close", "enableCollaborativeMode", "addCollaborator"}
`
