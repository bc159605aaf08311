package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// can be redirected or muted with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes every line with "name: ". It
// looks up Logf on each call, so SetLogger also applies to loggers created
// before it ran.
func Component(name string) func(format string, v ...interface{}) {
	prefix := name + ": "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
