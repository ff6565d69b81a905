// Package dedup removes records sharing a natural key before persistence.
package dedup

import "github.com/rmacedof/fuelsync/internal/models"

// Refuels drops refuels whose (company, raw timestamp, total amount) key was
// already seen, preserving first-seen order. Overlapping lookback windows
// across runs make duplicates routine rather than exceptional.
func Refuels(records []*models.Refuel) []*models.Refuel {
	seen := make(map[models.DedupKey]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Sales drops sales whose provider-assigned authorization id repeats,
// preserving first-seen order.
func Sales(records []*models.Sale) []*models.Sale {
	seen := make(map[int64]struct{}, len(records))
	out := records[:0:0]
	for _, s := range records {
		if _, dup := seen[s.AuthorizationID]; dup {
			continue
		}
		seen[s.AuthorizationID] = struct{}{}
		out = append(out, s)
	}
	return out
}
