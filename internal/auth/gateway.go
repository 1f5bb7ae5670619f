package auth

import "context"

// Policy document constants for gateway authorizer responses.
const (
	PolicyVersion = "2012-10-17"
	PolicyAction  = "execute-api:Invoke"
	EffectAllow   = "Allow"
	EffectDeny    = "Deny"
)

// AuthDecision is an API-gateway authorizer response.
type AuthDecision struct {
	PrincipalID    string            `json:"principalId"`
	PolicyDocument PolicyDocument    `json:"policyDocument"`
	Context        map[string]string `json:"context"`
}

// PolicyDocument grants or denies invoking one resource.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single policy statement.
type Statement struct {
	Effect   string `json:"Effect"`
	Action   string `json:"Action"`
	Resource string `json:"Resource"`
}

// Allowed reports whether the decision grants access.
func (d AuthDecision) Allowed() bool {
	return len(d.PolicyDocument.Statement) > 0 && d.PolicyDocument.Statement[0].Effect == EffectAllow
}

// AuthorizeForGateway verifies bearerToken and returns an Allow decision for
// methodArn carrying the verified id, or a Deny decision with no identity.
// A Deny is the failure signal; no error is returned.
func (s *Service) AuthorizeForGateway(ctx context.Context, methodArn, bearerToken string, requiredScopes []string) AuthDecision {
	id, err := s.AuthorizeBearer(ctx, bearerToken, requiredScopes)
	if err != nil {
		return decision("", EffectDeny, methodArn, map[string]string{})
	}
	return decision(id, EffectAllow, methodArn, map[string]string{"id": id})
}

func decision(principal, effect, resource string, ctx map[string]string) AuthDecision {
	return AuthDecision{
		PrincipalID: principal,
		PolicyDocument: PolicyDocument{
			Version: PolicyVersion,
			Statement: []Statement{{
				Effect:   effect,
				Action:   PolicyAction,
				Resource: resource,
			}},
		},
		Context: ctx,
	}
}
