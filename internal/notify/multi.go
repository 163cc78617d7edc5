package notify

import (
	"context"
	"errors"

	"siteops.kr/internal/report"
)

// Multi dispatches to every wrapped dispatcher and joins their failures.
// One consumer failing never stops delivery to the others.
type Multi []report.Dispatcher

var _ report.Dispatcher = (Multi)(nil)

func (m Multi) Dispatch(ctx context.Context, evt report.Event) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
