package engine

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"gymhub/backend/internal/logger"
)

const policyQuery = "data.gymhub.gym_access"

//go:embed gym_access.rego
var defaultRegoPolicy string

// OPAEvaluator evaluates the gym access policy in-process. The policy is compiled once.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewOPAEvaluator compiles policy (package gymhub.gym_access). An empty policy uses the
// built-in one.
func NewOPAEvaluator(ctx context.Context, policy string, log *zap.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("gym_access.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &OPAEvaluator{query: q, logger: logger.OrNop(log)}, nil
}

// HealthCheck evaluates a fixed request and checks the policy yields a decision.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Authorize(ctx, AccessRequest{SubjectID: "health", SubjectRole: "owner", Action: ActionGymList})
	return err
}

// Authorize evaluates req. A policy that yields no decision denies.
func (e *OPAEvaluator) Authorize(ctx context.Context, req AccessRequest) (Decision, error) {
	input := map[string]any{
		"subject": map[string]any{
			"id":   req.SubjectID,
			"role": req.SubjectRole,
		},
		"action": req.Action,
		"resource": map[string]any{
			"owner_id": req.ResourceOwnerID,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("eval access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Reason: "no policy decision"}, nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("access policy returned %T", rs[0].Expressions[0].Value)
	}
	d := Decision{}
	d.Allow, _ = doc["allow"].(bool)
	d.Reason, _ = doc["reason"].(string)
	if !d.Allow {
		e.logger.Debug("access denied",
			zap.String("subject_id", req.SubjectID), zap.String("action", req.Action), zap.String("reason", d.Reason))
	}
	return d, nil
}
