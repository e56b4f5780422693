package scoring

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kabini-ai/kabini/pkg/domain"
)

// Judge produces LLM-based quality scores for an answer against its source
// content
type Judge interface {
	ScoreAccuracy(ctx context.Context, answer, content, provider, model string) (float64, error)
	ScoreCitationLikelihood(ctx context.Context, answer, content, provider, model string) (float64, error)
}

// Embedder turns texts into vectors for similarity computation
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Scorer combines LLM judging, embeddings and local heuristics into the full
// score set for an answered question
type Scorer struct {
	judge Judge
	embed Embedder
}

// NewScorer creates a scorer. A nil embedder disables vector similarity, the
// field stays zero.
func NewScorer(judge Judge, embed Embedder) *Scorer {
	return &Scorer{judge: judge, embed: embed}
}

// Score computes all scores for an answer. Citation likelihood and accuracy
// are independent remote calls issued in parallel; geo score and vector
// similarity follow strictly after, the first depends on the pair's results.
// An empty answer is a no-op returning zero scores.
func (s *Scorer) Score(ctx context.Context, answer, content, provider, model string) (*domain.AnswerScores, error) {
	if answer == "" {
		return &domain.AnswerScores{}, nil
	}

	scores := &domain.AnswerScores{
		Sentiment:         Sentiment(answer),
		SemanticRelevance: SemanticRelevance(answer, content),
	}

	// fan-out: the two judge calls don't depend on each other
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		accuracy, err := s.judge.ScoreAccuracy(gctx, answer, content, provider, model)
		if err != nil {
			return fmt.Errorf("accuracy: %w", err)
		}
		scores.Accuracy = accuracy
		return nil
	})
	g.Go(func() error {
		citation, err := s.judge.ScoreCitationLikelihood(gctx, answer, content, provider, model)
		if err != nil {
			return fmt.Errorf("citation likelihood: %w", err)
		}
		scores.CitationLikelihood = citation
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score answer: %w", err)
	}

	// geo score blends the judged pair with the local heuristics
	scores.GeoScore = GeoScore(scores.Accuracy, scores.CitationLikelihood, scores.SemanticRelevance, scores.Sentiment)

	// vector similarity last, it needs a separate remote call
	if s.embed != nil {
		similarity, err := s.vectorSimilarity(ctx, answer, content)
		if err != nil {
			return nil, fmt.Errorf("vector similarity: %w", err)
		}
		scores.VectorSimilarity = similarity
	}

	return scores, nil
}

func (s *Scorer) vectorSimilarity(ctx context.Context, answer, content string) (float64, error) {
	vectors, err := s.embed.Embed(ctx, []string{answer, content})
	if err != nil {
		return 0, err
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 vectors, got %d", len(vectors))
	}
	return Cosine(vectors[0], vectors[1]), nil
}
