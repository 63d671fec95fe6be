package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/walletrisk/internal/report"
)

// DatabaseChecker pings the connection pool.
func DatabaseChecker(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "database", Healthy: true}
	}
}

// RunFreshnessChecker reports unhealthy when the latest scoring run is older
// than maxAge. A store with no runs yet is healthy; the first run may still
// be in progress.
func RunFreshnessChecker(store report.Store, maxAge time.Duration, now func() time.Time) Checker {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) Status {
		run, err := store.LatestRun(ctx)
		if errors.Is(err, report.ErrNotFound) {
			return Status{Name: "scoring", Healthy: true, Detail: "no runs yet"}
		}
		if err != nil {
			return Status{Name: "scoring", Healthy: false, Detail: err.Error()}
		}
		age := now().Sub(run.CompletedAt)
		if age > maxAge {
			return Status{
				Name:    "scoring",
				Healthy: false,
				Detail:  fmt.Sprintf("latest run %s completed %s ago", run.ID, age.Truncate(time.Second)),
			}
		}
		return Status{Name: "scoring", Healthy: true, Detail: "latest run " + run.ID + " (" + run.Status + ")"}
	}
}
