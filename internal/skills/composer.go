package skills

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// LayerDivider separates prompt layers in the composed instruction text.
const LayerDivider = "\n\n---\n\n"

// MemoryProvider returns durable memory lines relevant to an account and
// optionally one member. Implemented by the memory service.
type MemoryProvider interface {
	PromptMemories(ctx context.Context, accountID uuid.UUID, memberID string) ([]string, error)
}

// Voice is the brand layer of the prompt, taken from the account's
// profile. Zero-value fields are omitted from the composed text.
type Voice struct {
	GymName string
	Tone    string
	SignOff string
}

func (v Voice) layer() string {
	var lines []string
	if v.GymName != "" {
		lines = append(lines, "You write on behalf of "+v.GymName+".")
	}
	if v.Tone != "" {
		lines = append(lines, "Voice and tone: "+v.Tone)
	}
	if v.SignOff != "" {
		lines = append(lines, "Sign off every message with: "+v.SignOff)
	}
	return strings.Join(lines, "\n")
}

// Composer assembles the layered instruction prompt handed to the model:
// global base, the account's brand voice, selected skill bodies, the
// account's customization note, and durable memories. Empty layers are
// omitted; collaborator failures degrade to composing with whatever
// loaded.
type Composer struct {
	index          *Index
	customizations CustomizationStore
	memories       MemoryProvider
}

func NewComposer(index *Index, customizations CustomizationStore, memories MemoryProvider) *Composer {
	return &Composer{
		index:          index,
		customizations: customizations,
		memories:       memories,
	}
}

// Index exposes the underlying skill index for selection and admin reload.
func (c *Composer) Index() *Index { return c.index }

// Compose builds the full prompt for the given skills, account, and member.
func (c *Composer) Compose(ctx context.Context, accountID uuid.UUID, memberID string, voice Voice, selected []Skill) string {
	var layers []string

	if base := c.index.Base(); base != "" {
		layers = append(layers, base)
	}
	if brand := voice.layer(); brand != "" {
		layers = append(layers, brand)
	}

	for _, skill := range selected {
		if body := strings.TrimSpace(skill.Body); body != "" {
			layers = append(layers, body)
		}
		if c.customizations != nil {
			custom, err := c.customizations.Get(ctx, accountID, skill.ID)
			if err != nil {
				slog.Warn("composer: loading skill customization", "error", err, "skill", skill.ID)
			} else if custom != nil && strings.TrimSpace(custom.Note) != "" {
				layers = append(layers, "Account notes for this playbook:\n"+strings.TrimSpace(custom.Note))
			}
		}
	}

	if c.memories != nil {
		lines, err := c.memories.PromptMemories(ctx, accountID, memberID)
		if err != nil {
			slog.Warn("composer: loading memories", "error", err, "account_id", accountID)
		} else if len(lines) > 0 {
			layers = append(layers, "What you remember:\n- "+strings.Join(lines, "\n- "))
		}
	}

	return strings.Join(layers, LayerDivider)
}
