package skills

import (
	"sort"
	"strings"
)

// Scoring weights. Trigger hits dominate, applies-when word overlap is the
// weak signal, and a domain-name mention adds a fixed bonus.
const (
	triggerWeight = 10
	overlapWeight = 1
	domainBonus   = 5
)

// legacyTypeSkills maps legacy task types to skill ids so every known task
// type resolves to a skill even when the free-text matcher scores nothing.
var legacyTypeSkills = map[string]string{
	"renewal_at_risk": "renewal_at_risk",
	"payment_failed":  "payment_recovery",
	"inactive_member": "re_engagement",
	"cancelled":       "win_back",
	"win_back":        "win_back",
}

// SelectOptions controls skill selection.
type SelectOptions struct {
	// ExplicitType is a legacy task type used as a fallback when the
	// semantic matcher scores nothing.
	ExplicitType string
	// MaxSkills caps the result; 0 means 1.
	MaxSkills int
}

// Score rates how well a skill fits a free-text task description.
// Deterministic and pure: exact trigger hits score highest, word overlap
// with the applies-when text scores lower, a domain substring match adds a
// fixed bonus.
func Score(description string, skill Skill) int {
	desc := strings.ToLower(description)
	score := 0

	for _, trigger := range skill.Triggers {
		if trigger != "" && strings.Contains(desc, trigger) {
			score += triggerWeight
		}
	}

	descWords := wordSet(desc)
	for word := range wordSet(strings.ToLower(skill.AppliesWhen)) {
		if descWords[word] {
			score += overlapWeight
		}
	}

	if skill.Domain != "" && strings.Contains(desc, strings.ToLower(skill.Domain)) {
		score += domainBonus
	}

	return score
}

// Select ranks the index's skills against the description and returns the
// top scorers. When nothing scores above zero, the legacy type table
// resolves ExplicitType; an empty result means the caller composes with the
// base layer only.
func (ix *Index) Select(description string, opts SelectOptions) []Skill {
	maxSkills := opts.MaxSkills
	if maxSkills <= 0 {
		maxSkills = 1
	}

	catalog := ix.Skills()
	type scored struct {
		skill Skill
		score int
	}
	var ranked []scored
	for _, s := range catalog {
		if sc := Score(description, s); sc > 0 {
			ranked = append(ranked, scored{skill: s, score: sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) == 0 {
		if id, ok := legacyTypeSkills[opts.ExplicitType]; ok {
			if s := ix.Get(id); s != nil {
				return []Skill{*s}
			}
		}
		return nil
	}

	if len(ranked) > maxSkills {
		ranked = ranked[:maxSkills]
	}
	out := make([]Skill, len(ranked))
	for i, r := range ranked {
		out[i] = r.skill
	}
	return out
}

// wordSet splits text into a set of words longer than three characters,
// which keeps stopwords from inflating overlap scores.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(w) > 3 {
			set[w] = true
		}
	}
	return set
}
