package prompts

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"localassist/pkg/logx"
	"localassist/pkg/persistence"
)

// SeedStore is the subset of the prompt store seeding needs.
type SeedStore interface {
	List(ctx context.Context, opts persistence.ListPromptsOpts) ([]persistence.Prompt, int, error)
	Create(ctx context.Context, params persistence.CreatePromptParams) (*persistence.Prompt, error)
}

// SeedEntry is one prompt in a seed file.
type SeedEntry struct {
	Title   string   `yaml:"title"`
	Type    string   `yaml:"type"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags,omitempty"`
	Active  bool     `yaml:"active"`
}

// SeedFile is the YAML document layout:
//
//	prompts:
//	  - title: Strict reviewer
//	    type: verifier_system
//	    tags: [review, json]
//	    active: true
//	    content: |
//	      You are a strict reviewer...
type SeedFile struct {
	Prompts []SeedEntry `yaml:"prompts"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// DefaultSeed returns the built-in role prompts as seed entries, each marked active.
func DefaultSeed() *SeedFile {
	return &SeedFile{Prompts: []SeedEntry{
		{Title: "Default reasoner", Type: RoleReasonerSystem, Content: DefaultReasonerSystem, Tags: []string{"default"}, Active: true},
		{Title: "Default verifier", Type: RoleVerifierSystem, Content: DefaultVerifierSystem, Tags: []string{"default"}, Active: true},
		{Title: "Default correction", Type: RoleCorrectionFeedback, Content: DefaultCorrectionFeedback, Tags: []string{"default"}, Active: true},
	}}
}

// Apply inserts every entry whose (title, type) pair is not stored yet and returns how many were created.
// An entry marked active becomes the active prompt of its type only when that type has none.
func (s *SeedFile) Apply(ctx context.Context, store SeedStore) (int, error) {
	logger := logx.NewLogger("prompt-seed")
	created := 0

	for i, entry := range s.Prompts {
		if err := persistence.ValidateType(entry.Type); err != nil {
			return created, fmt.Errorf("seed entry %d (%q): %w", i, entry.Title, err)
		}
		existing, err := listAll(ctx, store, entry.Type)
		if err != nil {
			return created, err
		}

		hasActive := false
		duplicate := false
		for j := range existing {
			if existing[j].IsActive {
				hasActive = true
			}
			if existing[j].Title == entry.Title {
				duplicate = true
			}
		}
		if duplicate {
			logx.Debug(ctx, "prompts", "seed entry %q (%s) already stored", entry.Title, entry.Type)
			continue
		}

		_, err = store.Create(ctx, persistence.CreatePromptParams{
			Title:    entry.Title,
			Content:  entry.Content,
			Type:     entry.Type,
			Tags:     strings.Join(entry.Tags, ","),
			IsActive: entry.Active && !hasActive,
		})
		if err != nil {
			return created, fmt.Errorf("seed entry %d (%q): %w", i, entry.Title, err)
		}
		created++
	}

	if created > 0 {
		logger.Info("Seeded %d prompt(s)", created)
	}
	return created, nil
}

func listAll(ctx context.Context, store SeedStore, promptType string) ([]persistence.Prompt, error) {
	var all []persistence.Prompt
	for page := 1; ; page++ {
		batch, total, err := store.List(ctx, persistence.ListPromptsOpts{
			Type:     promptType,
			Page:     page,
			PageSize: persistence.MaxPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list prompts of type %q: %w", promptType, err)
		}
		all = append(all, batch...)
		if len(batch) == 0 || len(all) >= total {
			return all, nil
		}
	}
}
