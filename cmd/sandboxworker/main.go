// sandboxworker executes a single sandboxed run: it reads one JSON
// transport.Request from stdin and writes one transport.Response to
// stdout, then exits. It is the binary pkg/transport.External spawns per
// run; it never serves more than one request per process.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/transport"
	"github.com/sandboxkernel/sandboxkernel/pkg/worker"
)

// Exit codes mirror spec.md §6: 0 on a completed run (ok true or false is
// carried in the response body, not the exit code), 2 when stdin could not
// be read or parsed at all. The same code 2 is also used when the request's
// audit sinks or capabilities/roots cannot be resolved, or the response
// cannot be written.
const (
	exitOK           = 0
	exitMissingInput = 2
)

func main() {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Printf("sandboxworker: read stdin: %v", err)
		os.Exit(exitMissingInput)
	}

	var req transport.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("sandboxworker: parse request: %v", err)
		os.Exit(exitMissingInput)
	}

	sinks, err := audit.Build(req.AuditSinkSpecs)
	if err != nil {
		log.Printf("sandboxworker: build audit sinks: %v", err)
		os.Exit(exitMissingInput)
	}

	reg := registry()
	in, err := transport.Resolve(reg, req, sinks)
	if err != nil {
		log.Printf("sandboxworker: resolve request: %v", err)
		os.Exit(exitMissingInput)
	}

	out := worker.Run(context.Background(), in)

	resp := transport.Response{
		OK:      out.OK,
		Error:   out.Error,
		Result:  out.Result,
		Locals:  out.Locals,
		Events:  out.Events,
		Metrics: out.Metrics,
		Stats:   out.Stats,
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(resp); err != nil {
		log.Printf("sandboxworker: encode response: %v", err)
		os.Exit(exitMissingInput)
	}
	os.Exit(exitOK)
}

// registry is where a deployment of this binary would register its
// application-specific capabilities and roots by func_path/name. None are
// registered by default; a Request naming one this binary doesn't know
// about fails with a "no capability/root registered" error.
func registry() *transport.Registry {
	return transport.NewRegistry()
}
