package visual

import (
	"fmt"

	"github.com/toricodesthings/docmatch/internal/phash"
	"github.com/toricodesthings/docmatch/internal/types"
)

type Policy struct {
	MaxDistance    int
	RatioThreshold float64
	// TrailingPages decides whether pages past the shorter document count
	// against the ratio.
	TrailingPages string
}

func PolicyFrom(o types.Options) Policy {
	return Policy{
		MaxDistance:    o.MaxHammingPerPage,
		RatioThreshold: o.MatchRatioThreshold,
		TrailingPages:  o.TrailingPages,
	}
}

// Match aligns two page-ordered fingerprint sequences position by position.
func Match(a, b []phash.Fingerprint, p Policy) (types.VisualResult, error) {
	n := min(len(a), len(b))

	res := types.VisualResult{
		PagesA:        len(a),
		PagesB:        len(b),
		ComparedPages: n,
		TrailingPages: p.TrailingPages,
		Pages:         make([]types.PageMatch, 0, n),
	}
	if res.TrailingPages == "" {
		res.TrailingPages = types.TrailingIgnore
	}

	for i := 0; i < n; i++ {
		d, err := phash.Distance(a[i], b[i])
		if err != nil {
			return types.VisualResult{}, fmt.Errorf("page %d: %w", i+1, err)
		}
		ok := d <= p.MaxDistance
		if ok {
			res.Matches++
		}
		res.Pages = append(res.Pages, types.PageMatch{Page: i + 1, Distance: d, Match: ok})
	}

	denom := n
	if res.TrailingPages == types.TrailingPenalize {
		denom = max(len(a), len(b))
	}
	if denom > 0 {
		res.MatchRatio = float64(res.Matches) / float64(denom)
		res.SameVisual = res.MatchRatio >= p.RatioThreshold
	}
	return res, nil
}
