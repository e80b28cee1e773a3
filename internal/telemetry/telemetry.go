// Package telemetry turns engine events into logs, traces, metrics and
// database rows.
package telemetry

import (
	"errors"

	"github.com/cwbudde/goeda/internal/engine"
)

// Sink is a publisher that holds resources.
type Sink interface {
	engine.Publisher
	Close() error
}

// CloseAll closes every publisher that supports it.
func CloseAll(pubs ...engine.Publisher) error {
	var errs []error
	for _, p := range pubs {
		if c, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
