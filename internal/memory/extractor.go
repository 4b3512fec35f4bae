package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rejoinhq/rejoin/internal/llm"
)

const extractionSystem = `You review finished conversations between a gym's retention agent and a member, and pull out facts worth remembering for future conversations.
Only durable facts qualify: stable preferences, life circumstances, facts about the gym itself, or patterns in what worked. Never extract pleasantries, one-off scheduling details, or anything already implied by the conversation goal.
Respond with a JSON array, possibly empty, of objects:
{
  "content": "one self-contained sentence",
  "category": "preference" | "member_fact" | "gym_context" | "learned_pattern",
  "scope": "global" | "member",
  "importance": 1-5,
  "evidence": "short quote or paraphrase from the conversation",
  "confidence": 0.0-1.0,
  "memberName": "the member's name if known"
}
Use scope "global" only for facts about the gym or patterns that apply to every member.`

// Extractor runs the first memory pass over a finished conversation.
type Extractor struct {
	model llm.Client
}

func NewExtractor(model llm.Client) *Extractor {
	return &Extractor{model: model}
}

// Extract pulls durable facts out of a transcript. Unparseable model
// output is an error; individually malformed entries are dropped, not
// fatal.
func (e *Extractor) Extract(ctx context.Context, transcript, memberName string) ([]ExtractedMemory, error) {
	var sb strings.Builder
	if memberName != "" {
		fmt.Fprintf(&sb, "Member name: %s\n\n", memberName)
	}
	sb.WriteString("Conversation:\n")
	sb.WriteString(transcript)

	raw, err := e.model.Complete(ctx, llm.Request{System: extractionSystem, User: sb.String()})
	if err != nil {
		return nil, fmt.Errorf("extraction pass: %w", err)
	}

	var extracted []ExtractedMemory
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &extracted); err != nil {
		return nil, fmt.Errorf("parsing extraction output: %w", err)
	}

	kept := extracted[:0]
	for i := range extracted {
		if extracted[i].normalize() {
			kept = append(kept, extracted[i])
		}
	}
	return kept, nil
}
