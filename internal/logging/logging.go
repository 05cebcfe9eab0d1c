// Package logging writes the timestamped console log. Every line carries a
// [YYYY/MM/DD HH:MM:SS] prefix in Japan Standard Time.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// JST has no daylight saving, so a fixed offset is all we need.
var jst = time.FixedZone("JST", 9*60*60)

const stampLayout = "2006/01/02 15:04:05"

// logger carries no flags of its own; the prefix is built by Printf.
var logger = log.New(os.Stdout, "", 0)

// Printf writes one log line with the JST timestamp prefix.
func Printf(format string, v ...interface{}) {
	logger.Printf("[%s] %s", time.Now().In(jst).Format(stampLayout), fmt.Sprintf(format, v...))
}

// SetOutput redirects the log, mainly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}
