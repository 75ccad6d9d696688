package store

import (
	"context"
	"log"
	"time"
)

// DefaultRetention is how long readings stay queryable. The dashboard only
// looks at the recent past; anything older is dead weight.
const DefaultRetention = 24 * time.Hour

// RunRetention prunes old readings on an hourly cadence until the context
// is cancelled.
func (s *Store) RunRetention(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	prune := func() {
		n, err := s.PruneBefore(time.Now().Add(-retention))
		if err != nil {
			log.Printf("retention: prune: %v", err)
			return
		}
		if n > 0 {
			log.Printf("retention: pruned %d readings", n)
		}
	}

	prune()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
