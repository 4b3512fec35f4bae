package skills

import (
	"time"

	"github.com/google/uuid"
)

// Skill is one behavior definition from the catalog: a structured header
// describing when it applies, and a free-text instruction body.
type Skill struct {
	ID          string   `json:"id"`
	AppliesWhen string   `json:"applies_when"`
	Domain      string   `json:"domain"`
	Triggers    []string `json:"triggers"`
	Body        string   `json:"-"`
}

// Customization is an account-scoped note appended to a skill's body
// during prompt composition.
type Customization struct {
	AccountID uuid.UUID `json:"account_id"`
	SkillID   string    `json:"skill_id"`
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertCustomizationRequest creates or replaces a customization note.
type UpsertCustomizationRequest struct {
	Note string `json:"note" validate:"required,min=1,max=4000"`
}
