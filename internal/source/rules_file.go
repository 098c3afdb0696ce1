package source

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veridian-systems/rowguard/internal/models"
)

// FileRuleSource reads rule definitions from a YAML document:
//
//	rules:
//	  - id: R001
//	    description: negative amounts
//	    predicate: amount < 0
//
// Intended for standalone deployments and local development; production
// deployments normally use the Postgres rule repository.
type FileRuleSource struct {
	Path string
}

// NewFileRuleSource creates a rule source backed by the given YAML file.
func NewFileRuleSource(path string) *FileRuleSource {
	return &FileRuleSource{Path: path}
}

type ruleFile struct {
	Rules []models.RuleDefinition `yaml:"rules"`
}

// FetchRules loads and decodes the rule file. A missing or undecodable file
// wraps ErrUnavailable: without definitions there is no valid rule set.
func (s *FileRuleSource) FetchRules(ctx context.Context) ([]models.RuleDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.Path, err)
	}

	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, s.Path, err)
	}
	return doc.Rules, nil
}
