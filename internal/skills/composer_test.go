package skills

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCustomizations struct {
	notes map[string]string
	err   error
}

func (s *stubCustomizations) Get(_ context.Context, _ uuid.UUID, skillID string) (*Customization, error) {
	if s.err != nil {
		return nil, s.err
	}
	note, ok := s.notes[skillID]
	if !ok {
		return nil, nil
	}
	return &Customization{SkillID: skillID, Note: note}, nil
}

func (s *stubCustomizations) Upsert(context.Context, *Customization) error { return nil }
func (s *stubCustomizations) Delete(context.Context, uuid.UUID, string) error {
	return nil
}
func (s *stubCustomizations) ListByAccount(context.Context, uuid.UUID) ([]Customization, error) {
	return nil, nil
}

type stubMemories struct {
	lines []string
	err   error
}

func (s *stubMemories) PromptMemories(context.Context, uuid.UUID, string) ([]string, error) {
	return s.lines, s.err
}

func TestCompose_AllLayersInOrder(t *testing.T) {
	ix := loadedIndex(t)
	comp := NewComposer(ix,
		&stubCustomizations{notes: map[string]string{"win_back": "Mention the new sauna."}},
		&stubMemories{lines: []string{"Prefers morning classes", "Goes by Sam"}},
	)

	skill := ix.Get("win_back")
	require.NotNil(t, skill)

	prompt := comp.Compose(context.Background(), uuid.New(), "member-1", Voice{}, []Skill{*skill})

	base := strings.Index(prompt, "retention agent")
	body := strings.Index(prompt, "concrete reason to return")
	note := strings.Index(prompt, "Mention the new sauna.")
	mems := strings.Index(prompt, "Prefers morning classes")
	require.True(t, base >= 0 && body >= 0 && note >= 0 && mems >= 0, "prompt: %s", prompt)
	assert.True(t, base < body && body < note && note < mems, "layer order: %d %d %d %d", base, body, note, mems)
}

func TestCompose_OmitsEmptyLayers(t *testing.T) {
	ix := loadedIndex(t)
	comp := NewComposer(ix, &stubCustomizations{}, &stubMemories{})

	skill := ix.Get("payment_recovery")
	require.NotNil(t, skill)

	prompt := comp.Compose(context.Background(), uuid.New(), "", Voice{}, []Skill{*skill})
	assert.NotContains(t, prompt, "Account notes")
	assert.NotContains(t, prompt, "What you remember")
	assert.False(t, strings.HasSuffix(prompt, strings.TrimSpace(LayerDivider)), "no dangling divider")
}

func TestCompose_CollaboratorFailuresDegrade(t *testing.T) {
	ix := loadedIndex(t)
	comp := NewComposer(ix,
		&stubCustomizations{err: errors.New("db down")},
		&stubMemories{err: errors.New("db down")},
	)

	skill := ix.Get("re_engagement")
	require.NotNil(t, skill)

	prompt := comp.Compose(context.Background(), uuid.New(), "member-1", Voice{}, []Skill{*skill})
	assert.Contains(t, prompt, "retention agent")
	assert.Contains(t, prompt, "something specific they liked")
}

func TestCompose_NoSkillsBaseOnly(t *testing.T) {
	ix := loadedIndex(t)
	comp := NewComposer(ix, nil, nil)

	prompt := comp.Compose(context.Background(), uuid.New(), "", Voice{}, nil)
	assert.Equal(t, ix.Base(), prompt)
}

func TestCompose_BrandVoiceLayer(t *testing.T) {
	ix := loadedIndex(t)
	comp := NewComposer(ix, nil, nil)

	skill := ix.Get("win_back")
	require.NotNil(t, skill)

	voice := Voice{
		GymName: "Iron Temple",
		Tone:    "warm, direct, no exclamation marks",
		SignOff: "Coach Sam",
	}
	prompt := comp.Compose(context.Background(), uuid.New(), "member-1", voice, []Skill{*skill})

	assert.Contains(t, prompt, "You write on behalf of Iron Temple.")
	assert.Contains(t, prompt, "Voice and tone: warm, direct, no exclamation marks")
	assert.Contains(t, prompt, "Sign off every message with: Coach Sam")

	// The voice sits between base and skill body.
	base := strings.Index(prompt, "retention agent")
	tone := strings.Index(prompt, "Voice and tone:")
	body := strings.Index(prompt, "concrete reason to return")
	require.True(t, base >= 0 && tone >= 0 && body >= 0, "prompt: %s", prompt)
	assert.True(t, base < tone && tone < body, "layer order: %d %d %d", base, tone, body)

	// Partial profiles emit only the lines they fill.
	toneOnly := comp.Compose(context.Background(), uuid.New(), "", Voice{Tone: "upbeat"}, nil)
	assert.Contains(t, toneOnly, "Voice and tone: upbeat")
	assert.NotContains(t, toneOnly, "Sign off")
	assert.NotContains(t, toneOnly, "on behalf of")
}
