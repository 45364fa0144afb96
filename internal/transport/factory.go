package transport

import (
	"fmt"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/client"
)

// stdioSpawnMu serializes the chdir-then-spawn sequence in makeStdio: cwd is
// process-global state, but connmgr.Initialize connects upstreams
// concurrently, so two stdio upstreams with different Cwd values racing to
// chdir would spawn in the wrong directory without this.
var stdioSpawnMu sync.Mutex

// Make constructs a wired MCP client for the given descriptor. It does not
// connect or initialize the session — that is Upstream Session's job
// (spec §4.2); Make only builds the object that knows how to speak the
// chosen wire transport.
func Make(d Descriptor) (Client, error) {
	d = Coerce(d)
	if errs := Validate(d); len(errs) > 0 {
		return nil, errs[0]
	}

	switch d.Kind {
	case KindStdio:
		return makeStdio(d)
	case KindHTTP:
		return makeHTTP(d)
	case KindSSE:
		return makeSSE(d)
	case KindWebsocket:
		return makeWebsocket(d)
	default:
		return nil, &ConfigError{Field: "kind", Message: fmt.Sprintf("unknown transport kind %q", d.Kind)}
	}
}

// makeStdio spawns the child process with env = union(parent env,
// transport.env), per spec §4.1. client.NewStdioMCPClient exposes no
// working-directory option, so when Cwd is set the whole process is
// chdir'ed around the synchronous spawn and restored immediately after —
// "cwd overrides the parent's only when present" per spec §4.1.
func makeStdio(d Descriptor) (Client, error) {
	env := os.Environ()
	for k, v := range d.Env {
		env = append(env, k+"="+v)
	}

	if d.Cwd == "" {
		c, err := client.NewStdioMCPClient(d.Command, env, d.Args...)
		if err != nil {
			return nil, err
		}
		return &mcpGoAdapter{c: c}, nil
	}

	stdioSpawnMu.Lock()
	defer stdioSpawnMu.Unlock()

	original, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	if err := os.Chdir(d.Cwd); err != nil {
		return nil, fmt.Errorf("chdir to %s: %w", d.Cwd, err)
	}
	defer os.Chdir(original)

	c, err := client.NewStdioMCPClient(d.Command, env, d.Args...)
	if err != nil {
		return nil, err
	}
	return &mcpGoAdapter{c: c}, nil
}

// makeHTTP builds an httpFetcher against the streamable-http URL. mcp-go's
// streamable-http client is not used here: its headers are fixed at
// construction, which cannot satisfy spec §4.5.3's 402-retry requirement
// (see httpfetcher.go).
func makeHTTP(d Descriptor) (Client, error) {
	headers := mergeHeaders(d.Headers, d.APIKey)
	return newHTTPFetcher(d.URL, headers), nil
}

// makeSSE builds an httpFetcher against postUrl for the same reason as
// makeHTTP. The sseUrl side of the SSE transport (the server->client
// notification stream) carries no payment-bearing request/response traffic
// of its own, so the gateway does not need a persistent listener on it to
// satisfy spec §4.5.3.
func makeSSE(d Descriptor) (Client, error) {
	headers := mergeHeaders(d.Headers, d.APIKey)
	return newHTTPFetcher(d.PostURL, headers), nil
}

func makeWebsocket(d Descriptor) (Client, error) {
	headers := mergeHeaders(d.Headers, d.APIKey)
	return newWebsocketClient(d.URL, headers)
}
