package context

import "github.com/forgecode-ai/forgecode/pkg/types"

// MaskPlaceholder replaces a masked tool observation. The call id stays
// untouched so the tool-call/tool-result pairing invariant still holds;
// only the bulky observation text is dropped.
const MaskPlaceholder = "[observation masked to save context; see original tool call for details]"

// ObservationMaskerConfig mirrors the context.mask_after_turns setting:
// observations older than this many turns, and outside the protected
// window, are replaced with a placeholder.
type ObservationMaskerConfig struct {
	MaskAfterTurns int
}

// MaskingStats reports how much a masking pass saved.
type MaskingStats struct {
	Masked     int
	BytesSaved int
}

// ObservationMasker implements the cheapest of the three context
// reduction techniques: replacing old tool results with a fixed
// placeholder. Zero additional cost, no information loss for recent
// context, and the first stage tried by Manager.PrepareForLLM.
type ObservationMasker struct {
	cfg ObservationMaskerConfig
}

func NewObservationMasker(cfg ObservationMaskerConfig) *ObservationMasker {
	return &ObservationMasker{cfg: cfg}
}

// Mask masks completed tool observations in entries whose turn is both
// older than MaskAfterTurns (measured back from currentTurn) and below
// protectedFromTurn. Entries are mutated in place; callers that need to
// keep the pre-mask form should operate on a cloned slice.
func (m *ObservationMasker) Mask(entries []Entry, currentTurn, protectedFromTurn int) MaskingStats {
	var stats MaskingStats
	if m.cfg.MaskAfterTurns <= 0 {
		return stats
	}
	maskBeforeTurn := currentTurn - m.cfg.MaskAfterTurns + 1

	for i := range entries {
		if entries[i].Turn >= protectedFromTurn || entries[i].Turn >= maskBeforeTurn {
			continue
		}
		for j, p := range entries[i].Parts {
			tp, ok := p.(*types.ToolPart)
			if !ok || tp.State.Status != "completed" {
				continue
			}
			if tp.State.Output == "" || tp.State.Output == MaskPlaceholder {
				continue
			}
			clone := *tp
			stats.BytesSaved += len(clone.State.Output)
			clone.State.Output = MaskPlaceholder
			entries[i].Parts[j] = &clone
			stats.Masked++
		}
	}
	return stats
}
