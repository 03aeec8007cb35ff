package failurelog

import (
	"context"
	"errors"

	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
)

// Tee fans a record out to every log. All logs are attempted; their errors
// are joined.
type Tee []harvest.FailureLog

// Record implements harvest.FailureLog.
func (t Tee) Record(ctx context.Context, rec harvest.FailureRecord) error {
	var errs []error
	for _, l := range t {
		if err := l.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
