package rpcregistry

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// docEntry is the YAML-serializable shape of one registered RPC,
// emitted by the `maelstrom doc` subcommand (spec §6, SPEC_FULL.md
// "doc subcommand output").
type docEntry struct {
	Name string `yaml:"name"`
	Doc  string `yaml:"doc"`
}

// RenderYAML emits every registered RPC as a sorted YAML list, the
// machine-readable half of the documentation generator.
func (r *Registry) RenderYAML() ([]byte, error) {
	all := r.All()
	entries := make([]docEntry, 0, len(all))
	for _, s := range all {
		entries = append(entries, docEntry{Name: s.Name, Doc: s.Doc})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return yaml.Marshal(entries)
}

// RenderMarkdown emits every registered RPC as a Markdown reference,
// the human-readable half of the documentation generator.
func (r *Registry) RenderMarkdown() string {
	all := r.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	var b strings.Builder
	b.WriteString("# Workload RPC reference\n\n")
	for _, s := range all {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Name, s.Doc)
	}
	return b.String()
}
