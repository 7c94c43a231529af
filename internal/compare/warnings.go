package compare

import (
	"fmt"

	"github.com/toricodesthings/docmatch/internal/quality"
	"github.com/toricodesthings/docmatch/internal/types"
)

// minTextWords is the word count below which a text layer counts as thin.
const minTextWords = 5

// Warnings lists caveats about how much weight each axis of r deserves.
// They never change a verdict.
func Warnings(r types.ComparisonReport) []string {
	var out []string

	qa := quality.Score(r.TextA, minTextWords)
	qb := quality.Score(r.TextB, minTextWords)

	switch {
	case qa.Empty && qb.Empty:
		out = append(out, "text layers are empty on both files; text_hash equality is not meaningful")
	case qa.Empty:
		out = append(out, DocA+" has no text layer")
	case qb.Empty:
		out = append(out, DocB+" has no text layer")
	}
	if !qa.Empty && qa.Degraded {
		out = append(out, fmt.Sprintf("%s text layer looks degraded (score %.2f)", DocA, qa.Score))
	}
	if !qb.Empty && qb.Degraded {
		out = append(out, fmt.Sprintf("%s text layer looks degraded (score %.2f)", DocB, qb.Score))
	}

	v := r.Visual
	if v.PagesA != v.PagesB && v.TrailingPages == types.TrailingIgnore {
		out = append(out, fmt.Sprintf("page counts differ (%d vs %d); trailing pages ignored", v.PagesA, v.PagesB))
	}
	if v.ComparedPages == 0 {
		out = append(out, "no pages were compared; visual verdict is negative by definition")
	}
	return out
}
