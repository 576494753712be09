package eventstream

import (
	"context"
	"errors"
)

// fanout publishes every event to each of its publishers.
type fanout struct {
	publishers []Publisher
}

// Fanout returns a Publisher that hands every event to all of pubs. Publish
// and Close try every publisher and join their errors.
func Fanout(pubs ...Publisher) Publisher {
	return &fanout{publishers: pubs}
}

func (f *fanout) PublishTurn(ctx context.Context, event *TurnCompletedEvent) error {
	if event == nil {
		return ErrNilTurnEvent
	}

	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishTurn(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
