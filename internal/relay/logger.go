package relay

import "github.com/sirupsen/logrus"

// Logger is the logging interface used throughout the relay. It is
// satisfied by *logrus.Logger, which is what cmd/kartrelay provides.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithError(err error) *logrus.Entry
}
