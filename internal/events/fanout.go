package events

import (
	"context"
	"errors"
)

// HandlerFunc adapts a function to DeliveryHandler.
type HandlerFunc func(ctx context.Context, entry OutboxEntry) error

func (f HandlerFunc) Handle(ctx context.Context, entry OutboxEntry) error { return f(ctx, entry) }

// FanOut delivers each entry to every handler. An entry stays pending when
// any handler fails, so handlers must tolerate redelivery.
type FanOut []DeliveryHandler

func (f FanOut) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnlyTypes restricts h to the listed event types.
func OnlyTypes(h DeliveryHandler, types ...string) DeliveryHandler {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return HandlerFunc(func(ctx context.Context, entry OutboxEntry) error {
		if _, ok := allowed[entry.Type]; !ok {
			return nil
		}
		return h.Handle(ctx, entry)
	})
}
