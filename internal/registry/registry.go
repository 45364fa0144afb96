package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/elizaOS/mcp-gateway/internal/upstream"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

const subsystem = "Registry"

// snapshot is the immutable published view. Registry swaps a pointer to one
// of these atomically on rebuild; readers never lock, per spec §5's "no
// locking required on the read path" guarantee.
type snapshot struct {
	tools     map[string]Entry
	resources map[string]Entry
	prompts   map[string]Entry
}

func emptySnapshot() *snapshot {
	return &snapshot{
		tools:     make(map[string]Entry),
		resources: make(map[string]Entry),
		prompts:   make(map[string]Entry),
	}
}

// ConflictResolution toggles per-kind whether a colliding exposedName gets
// an @upstreamId suffix (true) or is dropped with a warning in favor of the
// first-seen entry (false), per spec §4.4 and settings.enable*ConflictResolution.
type ConflictResolution struct {
	Tools     bool
	Resources bool
	Prompts   bool
}

// Registry holds the currently published snapshot and rebuilds it from a
// Connection Manager getConnected() snapshot on demand.
type Registry struct {
	current    atomic.Pointer[snapshot]
	resolution ConflictResolution
}

// New constructs an empty, published Registry.
func New(resolution ConflictResolution) *Registry {
	r := &Registry{resolution: resolution}
	r.current.Store(emptySnapshot())
	return r
}

// Refresh rebuilds the Registry from the given Connected sessions in three
// passes (tools, resources, prompts), per spec §4.4, then atomically
// replaces the published snapshot.
func (r *Registry) Refresh(ctx context.Context, sessions []*upstream.Session) {
	next := emptySnapshot()

	for _, s := range sessions {
		if s.Status() != upstream.StatusConnected || !s.Capabilities().HasTools {
			continue
		}
		tools, err := s.ListTools(ctx)
		if err != nil {
			logging.Warn(subsystem, "refresh: listTools failed for upstream %s: %v", s.Spec.ID, err)
			continue
		}
		for _, t := range tools {
			entry := Entry{
				OriginalName: t.Name,
				UpstreamID:   s.Spec.ID,
				Namespace:    s.Spec.Namespace,
				Description:  defaultDescription(t.Description, "tool", s.Spec.ID, s.Spec.Namespace),
				InputSchema:  schemaToMap(t.InputSchema),
			}
			entry.ExposedName = exposedToolOrPromptName(s.Spec.Namespace, t.Name)
			insert(next.tools, entry, r.resolution.Tools)
		}
	}

	for _, s := range sessions {
		if s.Status() != upstream.StatusConnected || !s.Capabilities().HasResources {
			continue
		}
		resources, err := s.ListResources(ctx)
		if err != nil {
			logging.Warn(subsystem, "refresh: listResources failed for upstream %s: %v", s.Spec.ID, err)
			continue
		}
		for _, res := range resources {
			entry := Entry{
				OriginalName: res.URI,
				UpstreamID:   s.Spec.ID,
				Namespace:    s.Spec.Namespace,
				Description:  defaultDescription(res.Description, "resource", s.Spec.ID, s.Spec.Namespace),
				MimeType:     res.MIMEType,
			}
			entry.ExposedName = exposedResourceName(s.Spec.Namespace, res.URI)
			insert(next.resources, entry, r.resolution.Resources)
		}
	}

	for _, s := range sessions {
		if s.Status() != upstream.StatusConnected || !s.Capabilities().HasPrompts {
			continue
		}
		prompts, err := s.ListPrompts(ctx)
		if err != nil {
			logging.Warn(subsystem, "refresh: listPrompts failed for upstream %s: %v", s.Spec.ID, err)
			continue
		}
		for _, p := range prompts {
			args := make([]PromptArgument, 0, len(p.Arguments))
			for _, a := range p.Arguments {
				args = append(args, PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
			}
			entry := Entry{
				OriginalName: p.Name,
				UpstreamID:   s.Spec.ID,
				Namespace:    s.Spec.Namespace,
				Description:  defaultDescription(p.Description, "prompt", s.Spec.ID, s.Spec.Namespace),
				Arguments:    args,
			}
			entry.ExposedName = exposedToolOrPromptName(s.Spec.Namespace, p.Name)
			insert(next.prompts, entry, r.resolution.Prompts)
		}
	}

	r.current.Store(next)
	logging.Info(subsystem, "rebuilt snapshot: %d tool(s), %d resource(s), %d prompt(s)", len(next.tools), len(next.resources), len(next.prompts))
}

// insert applies spec §4.4's conflict resolution: append @upstreamId (then
// #2, #3, ...) when enabled; otherwise keep the first entry and warn.
func insert(m map[string]Entry, entry Entry, resolveConflicts bool) {
	name := entry.ExposedName
	if _, exists := m[name]; !exists {
		m[name] = entry
		return
	}

	if !resolveConflicts {
		logging.Warn(subsystem, "dropping duplicate exposed name %q from upstream %s (first wins)", name, entry.UpstreamID)
		return
	}

	candidate := fmt.Sprintf("%s@%s", name, entry.UpstreamID)
	for suffix := 2; ; suffix++ {
		if _, exists := m[candidate]; !exists {
			break
		}
		candidate = fmt.Sprintf("%s@%s#%d", name, entry.UpstreamID, suffix)
	}
	entry.ExposedName = candidate
	m[candidate] = entry
}

func defaultDescription(description, kind, upstreamID, namespace string) string {
	if description != "" {
		return description
	}
	if namespace != "" {
		return fmt.Sprintf("%s from %s (%s)", kind, upstreamID, namespace)
	}
	return fmt.Sprintf("%s from %s", kind, upstreamID)
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]interface{} {
	return map[string]interface{}{
		"type":       schema.Type,
		"properties": schema.Properties,
		"required":   schema.Required,
	}
}

func (r *Registry) FindTool(exposedName string) (Entry, bool) {
	snap := r.current.Load()
	e, ok := snap.tools[exposedName]
	return e, ok
}

func (r *Registry) FindResource(exposedName string) (Entry, bool) {
	snap := r.current.Load()
	e, ok := snap.resources[exposedName]
	return e, ok
}

func (r *Registry) FindPrompt(exposedName string) (Entry, bool) {
	snap := r.current.Load()
	e, ok := snap.prompts[exposedName]
	return e, ok
}

func (r *Registry) ListTools() []Entry {
	return values(r.current.Load().tools)
}

func (r *Registry) ListResources() []Entry {
	return values(r.current.Load().resources)
}

func (r *Registry) ListPrompts() []Entry {
	return values(r.current.Load().prompts)
}

func values(m map[string]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// GetStats returns per-kind counts and per-upstream tool counts, per spec
// §4.4.
func (r *Registry) GetStats() Stats {
	snap := r.current.Load()
	stats := Stats{
		ToolCount:           len(snap.tools),
		ResourceCount:       len(snap.resources),
		PromptCount:         len(snap.prompts),
		ToolCountByUpstream: make(map[string]int),
	}
	for _, e := range snap.tools {
		stats.ToolCountByUpstream[e.UpstreamID]++
	}
	return stats
}
