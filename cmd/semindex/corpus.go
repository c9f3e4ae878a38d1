package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/indexing"
)

// Corpus is the content of a corpus file. JSON files parse as YAML.
type Corpus struct {
	Jobs      []core.Job      `yaml:"jobs"`
	Stories   []core.Story    `yaml:"stories"`
	Documents []core.Document `yaml:"documents"`
}

func loadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	var corpus Corpus
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", path, err)
	}
	return &corpus, nil
}

// items flattens the corpus into its embeddable entities keyed by identity.
func (c *Corpus) items(useSummary bool) map[core.EntityKey]indexing.Item {
	out := make(map[core.EntityKey]indexing.Item)
	if c == nil {
		return out
	}
	for _, item := range indexing.Worklist(c.Jobs, c.Stories, c.Documents, useSummary) {
		out[item.Key] = item
	}
	return out
}

// corpusDiff lists the entities that changed between two versions of a
// corpus.
type corpusDiff struct {
	Changed map[core.EntityKey]bool
	Removed []core.EntityKey
}

func diffCorpus(prev, next *Corpus, useSummary bool) corpusDiff {
	before := prev.items(useSummary)
	after := next.items(useSummary)

	diff := corpusDiff{Changed: make(map[core.EntityKey]bool)}
	for key, item := range after {
		if old, ok := before[key]; !ok || old != item {
			diff.Changed[key] = true
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			diff.Removed = append(diff.Removed, key)
		}
	}
	return diff
}
