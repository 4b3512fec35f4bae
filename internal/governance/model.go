// Package governance holds the per-account policy document and the
// quota and audit machinery that enforces it.
package governance

import "encoding/json"

// Policy is the governance document accounts carry as JSONB. An absent
// or malformed document means the account runs unrestricted.
type Policy struct {
	// Blocked halts all agent activity for the account.
	Blocked bool `json:"blocked,omitempty"`

	// AllowedDomains restricts which member address domains the agent
	// will talk to. Empty means any domain.
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

// ParsePolicy decodes an account's governance column. Nil, empty, and
// invalid input all yield the zero Policy.
func ParsePolicy(data []byte) Policy {
	var p Policy
	if len(data) == 0 {
		return p
	}
	_ = json.Unmarshal(data, &p)
	return p
}
