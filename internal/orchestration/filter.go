package orchestration

import (
	"fmt"
	"path/filepath"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

// FilterPrompts returns the prompts whose DID or type matches at least one
// glob pattern, in task order. No patterns returns prompts unchanged.
func FilterPrompts(prompts []models.Prompt, patterns []string) ([]models.Prompt, error) {
	if len(patterns) == 0 {
		return prompts, nil
	}

	var matched []models.Prompt
	for _, p := range prompts {
		ok, err := matchesAny(&p, patterns)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func matchesAny(p *models.Prompt, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		for _, candidate := range []string{p.DID, string(p.Type)} {
			ok, err := filepath.Match(pattern, candidate)
			if err != nil {
				return false, fmt.Errorf("invalid prompt filter pattern %q: %w", pattern, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// limitPrompts applies the MaxPrompts cutoff. limit <= 0 means no limit.
func limitPrompts(prompts []models.Prompt, limit int) []models.Prompt {
	if limit > 0 && len(prompts) > limit {
		return prompts[:limit]
	}
	return prompts
}
