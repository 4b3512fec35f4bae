package operators

import (
	"time"

	"github.com/google/uuid"
)

// Operator is a human who manages gym accounts: owners, franchise staff,
// agency users. Operators authenticate; gym members never do.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
