package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"payops/internal/config"
)

type Capability string

const (
	SelfRead         Capability = "self.read"
	ContractorsRead  Capability = "contractors.read"
	ContractorsWrite Capability = "contractors.write"
	HoursRead        Capability = "hours.read"
	HoursApprove     Capability = "hours.approve"
	PaymentsRead     Capability = "payments.read"
	ProposalsRead    Capability = "payments.proposals.read"
	PaymentsCreate   Capability = "payments.create"
	PaymentsDisburse Capability = "payments.disburse"
	StatsRead        Capability = "stats.read"
)

const (
	RoleOps        = "ops"
	RoleContractor = "contractor"
)

// ForbiddenError indicates a missing capability.
type ForbiddenError struct {
	Capability Capability
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s required", e.Capability)
}

// Principal is an authenticated caller.
type Principal struct {
	Subject string   `json:"subject"`
	Email   string   `json:"email,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Source  string   `json:"source"`
}

// ActorID is the identifier written to audit columns.
func (p Principal) ActorID() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}

// GrantSource looks up roles granted to an actor out of band.
type GrantSource interface {
	ActorRoles(ctx context.Context, actorIDs ...string) ([]string, error)
}

// Policy maps principals to roles and roles to capabilities.
type Policy struct {
	roles      map[string][]Capability
	opsEmails  map[string]struct{}
	opsDomains []string
	grants     GrantSource
}

func NewPolicy(cfg config.AuthConfig, grants GrantSource) *Policy {
	p := &Policy{
		roles:     map[string][]Capability{},
		opsEmails: map[string]struct{}{},
		grants:    grants,
	}
	for role, caps := range cfg.Roles {
		for _, c := range caps {
			p.roles[role] = append(p.roles[role], Capability(strings.TrimSpace(c)))
		}
	}
	for _, e := range cfg.OpsEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p.opsEmails[e] = struct{}{}
		}
	}
	for _, d := range cfg.OpsDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			p.opsDomains = append(p.opsDomains, d)
		}
	}
	return p
}

// IsOps reports whether an email belongs to the operations team by explicit
// listing or by domain.
func (p *Policy) IsOps(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if _, ok := p.opsEmails[email]; ok {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range p.opsDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Roles resolves the effective roles of a principal. Every authenticated
// principal is at least a contractor.
func (p *Policy) Roles(ctx context.Context, pr Principal) ([]string, error) {
	set := map[string]struct{}{RoleContractor: {}}
	for _, r := range pr.Roles {
		if r = strings.TrimSpace(r); r != "" {
			set[r] = struct{}{}
		}
	}
	if p.IsOps(pr.Email) {
		set[RoleOps] = struct{}{}
	}
	if p.grants != nil {
		granted, err := p.grants.ActorRoles(ctx, pr.Subject, pr.Email)
		if err != nil {
			return nil, fmt.Errorf("load role grants: %w", err)
		}
		for _, r := range granted {
			set[r] = struct{}{}
		}
	}
	roles := make([]string, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles, nil
}

func (p *Policy) Capabilities(ctx context.Context, pr Principal) ([]Capability, error) {
	roles, err := p.Roles(ctx, pr)
	if err != nil {
		return nil, err
	}
	set := map[Capability]struct{}{}
	for _, r := range roles {
		for _, c := range p.roles[r] {
			set[c] = struct{}{}
		}
	}
	caps := make([]Capability, 0, len(set))
	for c := range set {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps, nil
}

func (p *Policy) Has(ctx context.Context, pr Principal, c Capability) (bool, error) {
	caps, err := p.Capabilities(ctx, pr)
	if err != nil {
		return false, err
	}
	for _, have := range caps {
		if have == c {
			return true, nil
		}
	}
	return false, nil
}

// Require returns ForbiddenError unless the principal holds the capability.
func (p *Policy) Require(ctx context.Context, pr Principal, c Capability) error {
	ok, err := p.Has(ctx, pr, c)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Capability: c}
	}
	return nil
}
