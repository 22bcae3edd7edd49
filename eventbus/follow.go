package eventbus

import (
	"context"
	"errors"
)

// Follow feeds every record of sub to handle until ctx ends or sub is closed.
// After a lag it first hands over whatever is still retained, then calls
// reconcile with the number of missed records so the consumer can re-derive
// what it skipped from authoritative state.
func Follow[T any](ctx context.Context, sub *Subscriber[T], handle func(T), reconcile func(missed uint64)) error {
	for {
		v, err := sub.Next(ctx)
		var lagged *LaggedError
		switch {
		case err == nil:
			handle(v)
		case errors.As(err, &lagged):
			missed := lagged.Missed + drain(sub, handle)
			if reconcile != nil {
				reconcile(missed)
			}
		default:
			return err
		}
	}
}

func drain[T any](sub *Subscriber[T], handle func(T)) uint64 {
	var missed uint64
	for {
		v, err := sub.TryNext()
		var lagged *LaggedError
		switch {
		case err == nil:
			handle(v)
		case errors.As(err, &lagged):
			missed += lagged.Missed
		default:
			return missed
		}
	}
}
