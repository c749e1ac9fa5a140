package llcp

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogLevelEnv overrides the configured log level when set.
const LogLevelEnv = "LLCP_LOG_LEVEL"

// NewLogger returns a text logger at the given level. An empty level
// means warn.
func NewLogger(level string) (*logrus.Logger, error) {
	if env := os.Getenv(LogLevelEnv); env != "" {
		level = env
	}
	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l, nil
}

// WithLogger makes the controller log to l.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Controller) error {
		if l == nil {
			return errors.New("nil logger")
		}
		c.log = l
		return nil
	}
}
