package memtab

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
)

// Reporter receives every failure a tracker detects. site is the file:line
// inside this package where the failure was noticed. A fatal report is
// always followed by a panic from the reporting operation; a non-fatal one
// is followed by an error return. Reporters must be safe for concurrent use.
type Reporter interface {
	Report(err error, site string, fatal bool)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error, site string, fatal bool)

func (f ReporterFunc) Report(err error, site string, fatal bool) {
	f(err, site, fatal)
}

// logReporter is the default Reporter; it writes through the standard log
// package so a library user gets output without wiring anything.
type logReporter struct{}

func (logReporter) Report(err error, site string, fatal bool) {
	if fatal {
		log.Printf("memtab: fatal at %s: %v", site, err)
		return
	}
	log.Printf("memtab: %s: %v", site, err)
}

// site returns the file:line of its caller, for failure reports.
func site() string {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
