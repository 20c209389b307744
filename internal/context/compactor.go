package context

import (
	"fmt"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// CompactorConfig mirrors context.compact_threshold_bytes: tool output
// larger than this is swapped for a reference id.
type CompactorConfig struct {
	ThresholdBytes int
}

// CompactorStats reports how much a compaction pass saved.
type CompactorStats struct {
	Compacted  int
	BytesSaved int
}

// ContextCompactor implements the second context-reduction technique:
// replacing oversized tool output with a stable reference id, stashing
// the original in a SideStore so it stays recoverable. Reversible,
// unlike summarization.
type ContextCompactor struct {
	cfg   CompactorConfig
	store *SideStore
}

func NewContextCompactor(cfg CompactorConfig, store *SideStore) *ContextCompactor {
	return &ContextCompactor{cfg: cfg, store: store}
}

// Compact swaps any tool-result content exceeding the configured byte
// threshold for a reference id, for every entry below protectedFromTurn.
func (c *ContextCompactor) Compact(entries []Entry, protectedFromTurn int) CompactorStats {
	var stats CompactorStats
	if c.cfg.ThresholdBytes <= 0 {
		return stats
	}

	for i := range entries {
		if entries[i].Turn >= protectedFromTurn {
			continue
		}
		for j, p := range entries[i].Parts {
			tp, ok := p.(*types.ToolPart)
			if !ok || len(tp.State.Output) <= c.cfg.ThresholdBytes {
				continue
			}
			id := c.store.Put(tp.State.Output)
			clone := *tp
			stats.BytesSaved += len(clone.State.Output)
			clone.State.Output = fmt.Sprintf("[content compacted: resolve_reference(%s)]", id)
			entries[i].Parts[j] = &clone
			stats.Compacted++
		}
	}
	return stats
}
