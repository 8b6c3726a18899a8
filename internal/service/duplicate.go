package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-core/internal/config"
	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "been": {},
	"will": {}, "what": {}, "when": {}, "your": {}, "there": {}, "their": {},
	"about": {}, "would": {}, "should": {}, "could": {}, "them": {}, "they": {},
	"very": {}, "just": {}, "like": {}, "some": {}, "please": {},
}

// DuplicateDetector scores textual similarity between a candidate ticket and
// a bounded window of recent same-category tickets. Read-only and tolerant
// of slightly stale data.
type DuplicateDetector struct {
	threshold float64
	window    int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDuplicateDetector builds a detector from config, filling defaults.
func NewDuplicateDetector(cfg config.DuplicateConfig, logger *zap.Logger) *DuplicateDetector {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.3
	}
	window := cfg.WindowSize
	if window <= 0 {
		window = 500
	}
	return &DuplicateDetector{
		threshold: threshold,
		window:    window,
		timeout:   cfg.Timeout(),
		logger:    logger,
	}
}

// WindowSize returns the bound on the recent-ticket window.
func (d *DuplicateDetector) WindowSize() int {
	return d.window
}

// FindCandidates returns tickets whose similarity meets the threshold,
// sorted descending by score with ties broken most-recent-first. Exceeding
// the time bound degrades to an empty list plus a soft timeout error that
// must never block ticket creation.
func (d *DuplicateDetector) FindCandidates(ctx context.Context, candidate *domain.Ticket, recent []domain.Ticket) ([]domain.DuplicateCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if len(recent) > d.window {
		recent = recent[:d.window]
	}
	candidateTokens := tokenize(candidate.Title + " " + candidate.Description)

	type scored struct {
		id        string
		score     float64
		createdAt time.Time
	}
	var matches []scored
	for i := range recent {
		if ctx.Err() != nil {
			d.logger.Warn("duplicate detection exceeded its bound",
				zap.String("ticket_id", candidate.ID),
				zap.Int("scanned", i))
			return nil, util.NewDuplicateDetectionTimeout()
		}
		other := &recent[i]
		if other.ID == candidate.ID {
			continue
		}
		score := jaccard(candidateTokens, tokenize(other.Title+" "+other.Description))
		if score >= d.threshold {
			matches = append(matches, scored{id: other.ID, score: score, createdAt: other.CreatedAt})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].createdAt.After(matches[j].createdAt)
	})

	result := make([]domain.DuplicateCandidate, 0, len(matches))
	for _, m := range matches {
		result = append(result, domain.DuplicateCandidate{TicketID: m.id, Score: m.score})
	}
	return result, nil
}

// Similarity computes the Jaccard similarity of two texts. Symmetric, and 1
// for identical inputs.
func (d *DuplicateDetector) Similarity(a, b string) float64 {
	return jaccard(tokenize(a), tokenize(b))
}

// tokenize lower-cases the text and keeps words longer than three
// characters, minus stop words.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		if len(word) <= 3 {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		// Two empty token sets are identical.
		return 1
	}
	return float64(intersection) / float64(union)
}
