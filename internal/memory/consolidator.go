package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rejoinhq/rejoin/internal/llm"
)

const consolidationSystem = `You deduplicate memory, deciding for each newly extracted fact whether it is genuinely new or a restatement or refinement of a fact already on file.
Only merge when the candidate is about the same specific fact as an existing memory, not merely the same topic. Two distinct facts about the same topic stay separate cards.
For each candidate respond with the candidate object unchanged plus, when it matches an existing memory, two extra fields:
  "targetMemoryId": the id of the matched existing memory
  "mergedContent": one sentence combining the old and new information
Candidates with no match get neither field. Respond with a JSON array in the same order as the input.`

// Consolidator runs the second memory pass: new facts against the cards
// already on file.
type Consolidator struct {
	model llm.Client
}

func NewConsolidator(model llm.Client) *Consolidator {
	return &Consolidator{model: model}
}

// Consolidate decides create-vs-update for each extracted memory. With no
// existing cards the model call is skipped and everything is a create.
// A failed or unparseable consolidation degrades the same way: worst case
// is a duplicate card, never a lost fact.
func (c *Consolidator) Consolidate(ctx context.Context, extracted []ExtractedMemory, existing []Card) []ConsolidatedCandidate {
	if len(extracted) == 0 {
		return nil
	}
	if len(existing) == 0 {
		return allCreates(extracted)
	}

	var sb strings.Builder
	sb.WriteString("Existing memories:\n")
	for _, card := range existing {
		fmt.Fprintf(&sb, "- id=%s [%s/%s] %s\n", card.ID, card.Category, card.Scope, card.Content)
	}
	sb.WriteString("\nNew candidates:\n")
	payload, err := json.Marshal(extracted)
	if err != nil {
		return allCreates(extracted)
	}
	sb.Write(payload)

	raw, err := c.model.Complete(ctx, llm.Request{System: consolidationSystem, User: sb.String()})
	if err != nil {
		slog.Warn("consolidation pass failed, storing all candidates as new", "error", err)
		return allCreates(extracted)
	}

	var candidates []ConsolidatedCandidate
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &candidates); err != nil {
		slog.Warn("consolidation output did not parse, storing all candidates as new", "error", err)
		return allCreates(extracted)
	}

	known := make(map[string]bool, len(existing))
	for _, card := range existing {
		known[card.ID.String()] = true
	}

	kept := candidates[:0]
	for i := range candidates {
		cand := &candidates[i]
		if !cand.normalize() {
			continue
		}
		// An update must point at a card we actually showed the model and
		// must carry merged text; anything else falls back to create.
		if cand.TargetMemoryID != nil {
			if cand.MergedContent == "" || !known[cand.TargetMemoryID.String()] {
				cand.TargetMemoryID = nil
				cand.MergedContent = ""
			}
		} else {
			cand.MergedContent = ""
		}
		kept = append(kept, *cand)
	}
	return kept
}

func allCreates(extracted []ExtractedMemory) []ConsolidatedCandidate {
	out := make([]ConsolidatedCandidate, len(extracted))
	for i, m := range extracted {
		out[i] = ConsolidatedCandidate{ExtractedMemory: m}
	}
	return out
}
