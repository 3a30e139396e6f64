package matching

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kinship/cycle-api/models"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type promptFile struct {
	Cohorts map[string][]models.ExchangePrompt `yaml:"cohorts"`
}

// PromptSets indexes icebreaker prompts by cohort. It is read-only after load.
type PromptSets struct {
	byCohort map[string][]models.ExchangePrompt
}

// ParsePromptSets decodes a YAML document of the form
//
//	cohorts:
//	  hikers:
//	    - id: hk-sunrise
//	      text: "Sunrise or sunset hike?"
func ParsePromptSets(data []byte) (*PromptSets, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing prompt sets: %w", err)
	}
	sets := &PromptSets{byCohort: make(map[string][]models.ExchangePrompt, len(f.Cohorts))}
	for cohort, prompts := range f.Cohorts {
		seen := make(map[string]bool, len(prompts))
		for _, p := range prompts {
			p.PromptID = strings.TrimSpace(p.PromptID)
			p.Text = strings.TrimSpace(p.Text)
			if p.PromptID == "" || p.Text == "" {
				return nil, fmt.Errorf("cohort %s: prompt needs both id and text", cohort)
			}
			if seen[p.PromptID] {
				return nil, fmt.Errorf("cohort %s: duplicate prompt id %s", cohort, p.PromptID)
			}
			seen[p.PromptID] = true
			p.CohortID = cohort
			sets.byCohort[cohort] = append(sets.byCohort[cohort], p)
		}
	}
	return sets, nil
}

// DefaultPromptSets returns the built-in prompt sets.
func DefaultPromptSets() *PromptSets {
	sets, err := ParsePromptSets(defaultPromptsYAML)
	if err != nil {
		panic(err)
	}
	return sets
}

// LoadPromptSets reads prompt sets from path, or the built-in sets when path is empty.
func LoadPromptSets(path string) (*PromptSets, error) {
	if path == "" {
		return DefaultPromptSets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt sets: %w", err)
	}
	return ParsePromptSets(data)
}

// For returns the prompts of a cohort in file order. Unknown cohorts have none.
func (s *PromptSets) For(cohortID string) []models.ExchangePrompt {
	out := make([]models.ExchangePrompt, len(s.byCohort[cohortID]))
	copy(out, s.byCohort[cohortID])
	return out
}

func (s *PromptSets) Find(cohortID, promptID string) (models.ExchangePrompt, bool) {
	for _, p := range s.byCohort[cohortID] {
		if p.PromptID == promptID {
			return p, true
		}
	}
	return models.ExchangePrompt{}, false
}

// Has reports whether cohortID has a prompt set. The prompt sets double as the
// list of cohorts a member may join.
func (s *PromptSets) Has(cohortID string) bool {
	return len(s.byCohort[cohortID]) > 0
}

// Cohorts returns the known cohort ids in lexical order.
func (s *PromptSets) Cohorts() []string {
	ids := make([]string, 0, len(s.byCohort))
	for id := range s.byCohort {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
