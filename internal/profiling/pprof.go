// Package profiling exposes an opt-in pprof side server.
package profiling

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
)

// StartPprofServer starts the pprof server on a separate port when
// ENABLE_PROFILING=true. It binds to localhost only; PPROF_PORT overrides
// the default port 6060.
//
// Runs before the structured logger exists, so it logs with the stdlib
// logger.
func StartPprofServer() {
	if os.Getenv("ENABLE_PROFILING") != "true" {
		return
	}

	port := os.Getenv("PPROF_PORT")
	if port == "" {
		port = "6060"
	}
	addr := "localhost:" + port

	go func() {
		log.Printf("Starting pprof server on http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()
}
