package scraper

import (
	"context"
	"math"
	"sort"

	"wuwaguides/internal/upstream"
	"wuwaguides/pkg/models"
)

// Source is the guide service as the pipeline sees it. *upstream.Client
// implements it; tests substitute fakes.
type Source interface {
	Roster(ctx context.Context) ([]models.RosterEntry, error)
	Guides(ctx context.Context, characterID int64) ([]models.GuideCandidate, error)
	GuideDetail(ctx context.Context, characterID int64, guideID models.LooseID) (*upstream.GuideDetail, error)
}

var _ Source = (*upstream.Client)(nil)

// Queue keeps the active and upcoming characters and orders them by their
// display sequence. Entries without a sequence go last; ties keep upstream order.
func Queue(roster []models.RosterEntry) []models.RosterEntry {
	out := make([]models.RosterEntry, 0, len(roster))
	for _, e := range roster {
		if e.Status == models.RoleStatusActive || e.Status == models.RoleStatusUpcoming {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sequenceOf(out[i]) < sequenceOf(out[j])
	})
	return out
}

func sequenceOf(e models.RosterEntry) int {
	if e.Sequence == nil {
		return math.MaxInt
	}
	return *e.Sequence
}

// SelectGuide picks the most liked guide. On equal like counts the one listed
// first upstream wins. ok is false for an empty list.
func SelectGuide(guides []models.GuideCandidate) (best models.GuideCandidate, ok bool) {
	for i, g := range guides {
		if i == 0 || g.LikeCount > best.LikeCount {
			best = g
		}
	}
	return best, len(guides) > 0
}
