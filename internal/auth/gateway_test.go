package auth

import (
	"context"
	"encoding/json"
	"testing"
)

const testArn = "arn:aws:execute-api:eu-west-1:123456789012:abc/dev/GET/users"

func TestAuthorizeForGateway_Allow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.IssueToken(ctx, "alice", []string{ScopeSelf})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	d := svc.AuthorizeForGateway(ctx, testArn, "Bearer "+tok.Value, []string{ScopeSelf})
	if !d.Allowed() {
		t.Fatal("expected Allow decision")
	}
	if d.PrincipalID != "alice" {
		t.Errorf("PrincipalID = %q, want alice", d.PrincipalID)
	}
	if d.Context["id"] != "alice" {
		t.Errorf("Context = %v, want id=alice", d.Context)
	}

	st := d.PolicyDocument.Statement[0]
	if d.PolicyDocument.Version != "2012-10-17" || st.Action != "execute-api:Invoke" || st.Resource != testArn {
		t.Errorf("unexpected policy document: %+v", d.PolicyDocument)
	}
}

func TestAuthorizeForGateway_Deny(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.IssueToken(ctx, "alice", []string{"other"})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scope":    "Bearer " + tok.Value,
		"garbage":        "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			d := svc.AuthorizeForGateway(ctx, testArn, header, []string{ScopeSelf})
			if d.Allowed() {
				t.Fatal("expected Deny decision")
			}
			if d.PrincipalID != "" || len(d.Context) != 0 {
				t.Errorf("Deny carries identity: %+v", d)
			}
			if d.PolicyDocument.Statement[0].Effect != EffectDeny {
				t.Errorf("Effect = %q, want Deny", d.PolicyDocument.Statement[0].Effect)
			}
		})
	}
}

func TestAuthDecision_JSONShape(t *testing.T) {
	d := decision("alice", EffectAllow, testArn, map[string]string{"id": "alice"})

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"principalId", "policyDocument", "context"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	doc := raw["policyDocument"].(map[string]any) //nolint:forcetypeassert // Shape asserted by test
	if doc["Version"] != "2012-10-17" {
		t.Errorf("Version = %v", doc["Version"])
	}
}
