package mimewatch

import (
	"time"
)

type options struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func defaultOptions() options {
	return options{
		readTimeout:  30 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// Option configures a [Server].
type Option func(*options)

// WithReadTimeout bounds each socket read of a session. The timeout
// applies per read attempt, not per frame: a slow frame is fine as long
// as bytes keep arriving. 0 disables the deadline.
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// WithWriteTimeout bounds each response write. 0 disables the deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}
