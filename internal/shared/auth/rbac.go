package auth

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Resources and actions checked by the HTTP layer.
const (
	ResourcePatients      = "patients"
	ResourcePractitioners = "practitioners"
	ResourcePrescriptions = "prescriptions"

	ActionCreate  = "create"
	ActionRead    = "read"
	ActionRender  = "render"
	ActionArchive = "archive"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
)

// ErrForbidden is returned when a role may not perform an action.
var ErrForbidden = errors.New("forbidden")

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

//go:embed policy.csv
var defaultPolicy string

// Authorizer answers role permission questions from a casbin policy.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer loads the built-in clinic policy.
func NewAuthorizer() (*Authorizer, error) {
	return NewAuthorizerWithPolicy(defaultPolicy)
}

// NewAuthorizerWithPolicy loads policy lines of the form "p, role, resource, action".
func NewAuthorizerWithPolicy(policy string) (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	rules, err := parsePolicy(policy)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		if _, err := e.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("rbac policy: %w", err)
		}
	}
	return &Authorizer{enforcer: e}, nil
}

func parsePolicy(policy string) ([][]string, error) {
	var rules [][]string
	for i, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}
		if len(parts) != 4 || parts[0] != "p" {
			return nil, fmt.Errorf("rbac policy line %d: %q", i+1, line)
		}
		rules = append(rules, parts[1:])
	}
	return rules, nil
}

// Allowed reports whether role may perform action on resource.
func (a *Authorizer) Allowed(role Role, resource, action string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	return a.enforcer.Enforce(string(role), resource, action)
}

// Require returns ErrForbidden unless role may perform action on resource.
func (a *Authorizer) Require(role Role, resource, action string) error {
	ok, err := a.Allowed(role, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
