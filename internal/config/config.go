// Package config reads the mimewatch configuration file: one directive per
// line, whitespace-tolerant, unknown directives ignored.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults used when a directive is absent.
const (
	DefaultListen        = "[::]:8898"
	DefaultClientTimeout = 30 * time.Second
)

// Config is an immutable snapshot of the configuration file. The server
// never re-consults it; reloads produce a fresh value that only affects
// future connections.
type Config struct {
	// Listen is the TCP address the server binds, always in host:port form.
	Listen string
	// ClientTimeout bounds each socket read of a session.
	ClientTimeout time.Duration
	// MaxConnections caps concurrently served connections. 0 means no cap.
	MaxConnections int
}

// Default returns a Config with all directives at their defaults.
func Default() *Config {
	return &Config{
		Listen:        DefaultListen,
		ClientTimeout: DefaultClientTimeout,
	}
}

// Load reads the configuration file at path. A missing file is an error;
// the caller decides whether that is fatal.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f)
}

// Parse reads directives from r. Malformed values fall back to the
// defaults instead of failing: the filter keeps running on a sloppy
// configuration file.
func Parse(r io.Reader) (*Config, error) {
	c := Default()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "Listen":
			c.Listen = normalizeListen(fields[1])
		case "Client_timeout":
			if secs, err := strconv.Atoi(fields[1]); err == nil && secs > 0 {
				c.ClientTimeout = time.Duration(secs) * time.Second
			}
		case "Max_connections":
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				c.MaxConnections = n
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// normalizeListen expands a bare port to a dual-stack wildcard address.
func normalizeListen(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return "[::]:" + v
}
