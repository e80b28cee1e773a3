//go:build !sqlite

package telemetry

import (
	"context"
	"errors"

	"github.com/cwbudde/goeda/internal/engine"
)

// SQLiteSink is unavailable without the sqlite build tag.
type SQLiteSink struct{}

func OpenSQLiteSink(context.Context, string) (*SQLiteSink, error) {
	return nil, errors.New("sqlite backend unavailable in this build; rebuild with -tags sqlite")
}

func (*SQLiteSink) Publish(engine.Event) {}

func (*SQLiteSink) Close() error { return nil }
