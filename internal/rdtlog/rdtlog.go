// Package rdtlog wires a logrus logger into dlog the way the teacher's
// userd service does, so both CLI binaries share one log-setup path.
package rdtlog

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// WithLevel returns a context carrying a logrus-backed dlog.Logger set to
// the named level, defaulting to info on an unrecognized name.
func WithLevel(ctx context.Context, level string) context.Context {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
}
