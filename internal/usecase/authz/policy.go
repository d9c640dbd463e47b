package authz

import (
	"context"
	"fmt"
	"slices"

	"github.com/kailas-cloud/selectd/internal/domain"
)

// Rule grants actions on a view to users, groups or any authenticated
// principal. Empty Actions or "*" matches every action.
type Rule struct {
	View          string
	Actions       []string
	Users         []string
	Groups        []string
	Authenticated bool
}

func (r Rule) allowsAction(action string) bool {
	return len(r.Actions) == 0 || slices.Contains(r.Actions, "*") || slices.Contains(r.Actions, action)
}

func (r Rule) matches(p domain.Principal) bool {
	if p.Anonymous {
		return false
	}
	if r.Authenticated || slices.Contains(r.Users, p.ID) {
		return true
	}
	for _, g := range r.Groups {
		if p.InGroup(g) {
			return true
		}
	}
	return false
}

// Policy is the configured domain.Decider: superusers may do anything,
// everyone else needs a matching rule.
type Policy struct {
	superusers map[string]struct{}
	rules      map[string][]Rule
}

var _ domain.Decider = (*Policy)(nil)

// NewPolicy validates and indexes rules by view.
func NewPolicy(superusers []string, rules []Rule) (*Policy, error) {
	p := &Policy{
		superusers: make(map[string]struct{}, len(superusers)),
		rules:      make(map[string][]Rule),
	}
	for _, u := range superusers {
		p.superusers[u] = struct{}{}
	}
	for i, r := range rules {
		if r.View == "" {
			return nil, domain.NewConfigurationError(fmt.Sprintf("authorization rule %d", i), fmt.Errorf("view is required"))
		}
		if !r.Authenticated && len(r.Users) == 0 && len(r.Groups) == 0 {
			return nil, domain.NewConfigurationError(fmt.Sprintf("authorization rule %d", i),
				fmt.Errorf("rule for view %q grants nobody", r.View))
		}
		p.rules[r.View] = append(p.rules[r.View], r)
	}
	return p, nil
}

// IsSuperuser reports whether p bypasses every rule.
func (p *Policy) IsSuperuser(pr domain.Principal) bool {
	if pr.Anonymous {
		return false
	}
	if pr.Superuser {
		return true
	}
	_, ok := p.superusers[pr.ID]
	return ok
}

// Decide implements domain.Decider.
func (p *Policy) Decide(_ context.Context, pr domain.Principal, view, action string) (bool, error) {
	if p.IsSuperuser(pr) {
		return true, nil
	}
	for _, r := range p.rules[view] {
		if r.allowsAction(action) && r.matches(pr) {
			return true, nil
		}
	}
	return false, nil
}
