package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/governance"
)

// Validator gates inbound messages on account health and governance
// policy before they reach the decision engine.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that the routed account may process a message from
// the given member address.
func (v *Validator) Validate(route *RouteResult, memberAddr string) error {
	if route.AccountID == uuid.Nil {
		return fmt.Errorf("account not found")
	}
	if route.OwnerOperatorID == uuid.Nil {
		return fmt.Errorf("account has no owner")
	}

	policy := governance.ParsePolicy(route.Governance)
	if policy.Blocked {
		return fmt.Errorf("account is blocked by governance policy")
	}
	if len(policy.AllowedDomains) > 0 {
		domain := memberDomain(memberAddr)
		if !domainAllowed(domain, policy.AllowedDomains) {
			return fmt.Errorf("member address domain %q not in allowed domains", domain)
		}
	}
	return nil
}

// memberDomain pulls the domain out of a member address, ignoring any
// resource suffix.
func memberDomain(addr string) string {
	bare, _, _ := strings.Cut(addr, "/")
	if _, domain, ok := strings.Cut(bare, "@"); ok {
		return domain
	}
	return bare
}

func domainAllowed(domain string, allowed []string) bool {
	for _, d := range allowed {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}
