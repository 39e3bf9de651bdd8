package notify

import (
	"context"
	"errors"

	"github.com/warp/leave-engine/leave"
)

// Multi delivers to every sink and joins their errors.
type Multi []leave.Notifier

func (m Multi) Notify(ctx context.Context, n leave.Notification) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
