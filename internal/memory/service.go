package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/llm"
	"github.com/rejoinhq/rejoin/internal/metrics"
)

// promptCardLimit caps how many cards the consolidation pass sees and how
// many lines go into a composed prompt.
const promptCardLimit = 20

// Service runs the two-pass memory pipeline and serves stored cards back
// into prompt composition.
type Service struct {
	repo         Repository
	extractor    *Extractor
	consolidator *Consolidator
	embedder     llm.Embedder
}

// NewService builds the memory service. embedder may be nil; cards are
// then stored without vectors and similarity search returns nothing.
func NewService(repo Repository, extractor *Extractor, consolidator *Consolidator, embedder llm.Embedder) *Service {
	return &Service{
		repo:         repo,
		extractor:    extractor,
		consolidator: consolidator,
		embedder:     embedder,
	}
}

// ProcessThread extracts durable facts from a finished conversation and
// stores them, merging with existing cards where the consolidation pass
// finds overlap. Extraction failure aborts; per-card store failures are
// logged and skipped so one bad row cannot drop the rest.
func (s *Service) ProcessThread(ctx context.Context, accountID uuid.UUID, memberID, memberName, transcript string) (created, updated int, err error) {
	extracted, err := s.extractor.Extract(ctx, transcript, memberName)
	if err != nil {
		return 0, 0, fmt.Errorf("processing thread memories: %w", err)
	}
	if len(extracted) == 0 {
		return 0, 0, nil
	}

	existing, err := s.repo.ListForPrompt(ctx, accountID, memberID, promptCardLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("loading existing memories: %w", err)
	}

	candidates := s.consolidator.Consolidate(ctx, extracted, existing)

	for _, cand := range candidates {
		if cand.TargetMemoryID != nil {
			emb := s.embed(ctx, cand.MergedContent)
			if err := s.repo.UpdateContent(ctx, *cand.TargetMemoryID, accountID, cand.MergedContent, cand.Importance, emb); err != nil {
				slog.Error("updating memory card", "error", err, "card_id", *cand.TargetMemoryID)
				continue
			}
			metrics.MemoriesTotal.WithLabelValues("updated").Inc()
			updated++
			continue
		}

		card := &Card{
			AccountID:  accountID,
			Content:    cand.Content,
			Category:   cand.Category,
			Scope:      cand.Scope,
			Importance: cand.Importance,
			Evidence:   cand.Evidence,
			Confidence: cand.Confidence,
			Embedding:  s.embed(ctx, cand.Content),
		}
		if cand.Scope == ScopeMember {
			card.MemberID = memberID
		}
		if err := s.repo.Create(ctx, card); err != nil {
			slog.Error("creating memory card", "error", err, "account_id", accountID)
			continue
		}
		metrics.MemoriesTotal.WithLabelValues("created").Inc()
		created++
	}
	return created, updated, nil
}

// PromptMemories returns formatted memory lines for prompt composition.
// Failures degrade to no memories; the conversation must not stall on a
// memory read.
func (s *Service) PromptMemories(ctx context.Context, accountID uuid.UUID, memberID string) ([]string, error) {
	cards, err := s.repo.ListForPrompt(ctx, accountID, memberID, promptCardLimit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(cards))
	for _, card := range cards {
		lines = append(lines, fmt.Sprintf("- [%s] %s", card.Category, card.Content))
	}
	return lines, nil
}

// Search runs similarity search over an account's cards. Without an
// embedder it returns no results rather than an error.
func (s *Service) Search(ctx context.Context, accountID uuid.UUID, query string, limit int, threshold float64) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, nil
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}
	return s.repo.SearchSimilar(ctx, accountID, emb, limit, threshold)
}

// CreateManual stores an operator-written card, bypassing extraction and
// consolidation. The same normalization as model output applies.
func (s *Service) CreateManual(ctx context.Context, accountID uuid.UUID, memberID string, entry ExtractedMemory) (*Card, error) {
	if !entry.normalize() {
		return nil, fmt.Errorf("memory card needs content")
	}

	card := &Card{
		AccountID:  accountID,
		Content:    entry.Content,
		Category:   entry.Category,
		Scope:      entry.Scope,
		Importance: entry.Importance,
		Evidence:   entry.Evidence,
		Confidence: entry.Confidence,
		Embedding:  s.embed(ctx, entry.Content),
	}
	if entry.Scope == ScopeMember {
		card.MemberID = memberID
	}
	if err := s.repo.Create(ctx, card); err != nil {
		return nil, fmt.Errorf("creating memory card: %w", err)
	}
	metrics.MemoriesTotal.WithLabelValues("created").Inc()
	return card, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]Card, int64, error) {
	cards, err := s.repo.ListByAccount(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountByAccount(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	return cards, count, nil
}

func (s *Service) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	return s.repo.Delete(ctx, id, accountID)
}

func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || text == "" {
		return nil
	}
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("embedding memory content", "error", err)
		return nil
	}
	return emb
}
