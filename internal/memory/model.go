package memory

import (
	"time"

	"github.com/google/uuid"
)

// Categories a memory card can carry. Anything else from the model is
// coerced to learned_pattern rather than rejected.
const (
	CategoryPreference     = "preference"
	CategoryMemberFact     = "member_fact"
	CategoryGymContext     = "gym_context"
	CategoryLearnedPattern = "learned_pattern"
)

// Scopes. Global cards apply to every conversation for the account;
// member cards only to threads with that member.
const (
	ScopeGlobal = "global"
	ScopeMember = "member"
)

// ExtractedMemory is one durable fact the extraction pass pulled out of a
// finished conversation. It has no identity yet; consolidation decides
// whether it becomes a new card or folds into an existing one.
type ExtractedMemory struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Scope      string  `json:"scope"`
	Importance int     `json:"importance"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
	MemberName string  `json:"memberName,omitempty"`
}

// ConsolidatedCandidate is the second pass's verdict on one extracted
// memory. TargetMemoryID set means update that card with MergedContent;
// unset means create. The two are exclusive.
type ConsolidatedCandidate struct {
	ExtractedMemory
	TargetMemoryID *uuid.UUID `json:"targetMemoryId,omitempty"`
	MergedContent  string     `json:"mergedContent,omitempty"`
}

// Card is a persisted memory. MemberID is empty for global scope.
type Card struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	MemberID   string    `json:"member_id,omitempty"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Scope      string    `json:"scope"`
	Importance int       `json:"importance"`
	Evidence   string    `json:"evidence,omitempty"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SearchResult pairs a card with its cosine similarity to the query.
type SearchResult struct {
	Card       Card    `json:"card"`
	Similarity float64 `json:"similarity"`
}

func validCategory(c string) bool {
	switch c {
	case CategoryPreference, CategoryMemberFact, CategoryGymContext, CategoryLearnedPattern:
		return true
	}
	return false
}

// normalize clamps model output into storable shape. Returns false when
// the entry has no content worth keeping.
func (m *ExtractedMemory) normalize() bool {
	if m.Content == "" {
		return false
	}
	if !validCategory(m.Category) {
		m.Category = CategoryLearnedPattern
	}
	if m.Scope != ScopeGlobal && m.Scope != ScopeMember {
		m.Scope = ScopeMember
	}
	if m.Importance < 1 {
		m.Importance = 1
	}
	if m.Importance > 5 {
		m.Importance = 5
	}
	if m.Confidence < 0 {
		m.Confidence = 0
	}
	if m.Confidence > 1 {
		m.Confidence = 1
	}
	return true
}
