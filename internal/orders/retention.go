package orders

import (
	"context"
	"log"
	"time"
)

// RunRetention periodically prunes terminal orders older than
// retentionDays, independent of Event Log / outbox retention (which is
// governed by consumer offsets, not wall-clock age). retentionDays <= 0
// disables pruning.
func RunRetention(ctx context.Context, repo Repository, retentionDays int) {
	if retentionDays <= 0 {
		log.Println("order retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Printf("order retention: pruning terminal orders older than %d days every %v", retentionDays, interval)

	prune(ctx, repo, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, repo, retentionDays)
		}
	}
}

func prune(ctx context.Context, repo Repository, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	n, err := repo.PruneTerminal(ctx, cutoff)
	if err != nil {
		log.Printf("order retention: prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("order retention: pruned %d terminal orders older than %s", n, cutoff.Format(time.RFC3339))
	}
}
