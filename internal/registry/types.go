// Package registry implements the Capability Registry of spec §4.4: a
// snapshot-style index mapping exposed names to (upstream id, original
// name, schema), rebuilt after every Connection Manager health-check pass.
// Deliberately not grounded on muster's NameTracker "smart prefixing"
// scheme (always prefix with musterPrefix_serverPrefix_name) — the spec's
// suffix-on-conflict algorithm in §4.4 is a different, explicit design this
// package implements literally instead.
package registry

import "strings"

// Kind tags which of the three aggregated collections an entry belongs to.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// Entry is the AggregatedEntry<K> of spec §3.
type Entry struct {
	ExposedName  string
	OriginalName string
	UpstreamID   string
	Namespace    string
	Description  string

	// Tool-only.
	InputSchema map[string]interface{}
	// Resource-only.
	MimeType string
	// Prompt-only.
	Arguments []PromptArgument
}

// PromptArgument mirrors mcp.PromptArgument's shape without importing the
// mcp-go type into the registry's public surface, keeping Entry transport
// agnostic.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// Stats is the result of getStats() per spec §4.4.
type Stats struct {
	ToolCount           int
	ResourceCount       int
	PromptCount         int
	ToolCountByUpstream map[string]int
}

// exposedToolOrPromptName implements spec §4.4 rule 2 for tools/prompts:
// "namespace ? ns:originalName : originalName".
func exposedToolOrPromptName(namespace, originalName string) string {
	if namespace == "" {
		return originalName
	}
	return namespace + ":" + originalName
}

// exposedResourceName implements spec §4.4 rule 2 for resources: if the
// original URI has a scheme, the namespace is inserted as a prefix in the
// path component (scheme://ns/rest); otherwise ns:originalUri. No namespace
// leaves the URI unchanged.
func exposedResourceName(namespace, originalURI string) string {
	if namespace == "" {
		return originalURI
	}
	if idx := strings.Index(originalURI, "://"); idx >= 0 {
		scheme := originalURI[:idx]
		rest := strings.TrimPrefix(originalURI[idx+3:], "/")
		return scheme + "://" + namespace + "/" + rest
	}
	return namespace + ":" + originalURI
}
