package analyzer

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atim-assistant/atim/internal/types"
)

// Catalog is a set of rules loaded from a YAML file.
//
// Example catalog file (rules.yaml):
//
//	rules:
//	  - id: "security/gets"
//	    regex: "\\bgets\\s*\\("
//	    extensions: [".c", ".cpp"]
//	    title: "Use of unsafe gets function"
//	    description: "gets cannot bound its input. Use fgets."
//	    suggested_fix: "fgets(buf, sizeof(buf), stdin);"
//	    severity: high
//	    category: security
//	    labels: ["security", "bug"]
//
//	repository_rules:
//	  - id: "documentation/contributing"
//	    unless_path: "(?i)^CONTRIBUTING\\.md$"
//	    title: "Add contributing guidelines"
//	    description: "Document how to build, test and submit changes."
//	    severity: low
//	    category: documentation
//	    labels: ["documentation"]
type Catalog struct {
	Rules           []Rule
	RepositoryRules []RepositoryRule
}

// catalogFile is the on-disk YAML structure.
type catalogFile struct {
	Rules           []ruleEntry     `yaml:"rules"`
	RepositoryRules []repoRuleEntry `yaml:"repository_rules,omitempty"`
}

type ruleEntry struct {
	ID           string   `yaml:"id"`
	Regex        string   `yaml:"regex"`
	Absent       bool     `yaml:"absent,omitempty"`
	PathContains string   `yaml:"path_contains,omitempty"`
	FilePattern  string   `yaml:"file_pattern,omitempty"` // e.g. "*.cpp"
	Extensions   []string `yaml:"extensions,omitempty"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	SuggestedFix string   `yaml:"suggested_fix,omitempty"`
	Severity     string   `yaml:"severity"`
	Category     string   `yaml:"category"`
	Labels       []string `yaml:"labels,omitempty"`
}

type repoRuleEntry struct {
	ID           string   `yaml:"id"`
	UnlessPath   string   `yaml:"unless_path,omitempty"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	SuggestedFix string   `yaml:"suggested_fix,omitempty"`
	Severity     string   `yaml:"severity"`
	Category     string   `yaml:"category"`
	Labels       []string `yaml:"labels,omitempty"`
}

// LoadCatalog loads rules from a YAML file. Any invalid entry rejects the
// whole file.
func LoadCatalog(filePath string) (*Catalog, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading rule catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return c, nil
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if len(file.Rules) == 0 && len(file.RepositoryRules) == 0 {
		return nil, fmt.Errorf("invalid catalog: no rules defined")
	}

	seen := make(map[string]bool)
	c := &Catalog{}

	for i, entry := range file.Rules {
		r, err := entry.compile()
		if err != nil {
			return nil, fmt.Errorf("invalid catalog: rule %d: %w", i, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("invalid catalog: rule %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		c.Rules = append(c.Rules, r)
	}

	for i, entry := range file.RepositoryRules {
		r, err := entry.compile()
		if err != nil {
			return nil, fmt.Errorf("invalid catalog: repository_rule %d: %w", i, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("invalid catalog: repository_rule %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		c.RepositoryRules = append(c.RepositoryRules, r)
	}

	return c, nil
}

func (s ruleEntry) compile() (Rule, error) {
	if s.ID == "" {
		return Rule{}, fmt.Errorf("id is required")
	}
	if s.Regex == "" {
		return Rule{}, fmt.Errorf("%s: regex is required", s.ID)
	}
	if s.Title == "" {
		return Rule{}, fmt.Errorf("%s: title is required", s.ID)
	}
	re, err := regexp.Compile(s.Regex)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: invalid regex: %w", s.ID, err)
	}
	if s.FilePattern != "" {
		if _, err := path.Match(s.FilePattern, ""); err != nil {
			return Rule{}, fmt.Errorf("%s: invalid file_pattern: %w", s.ID, err)
		}
	}
	sev, cat, err := parseClassification(s.Severity, s.Category)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: %w", s.ID, err)
	}

	var exts []string
	for _, ext := range s.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}

	return Rule{
		ID:           s.ID,
		Pattern:      re,
		Absent:       s.Absent,
		PathContains: s.PathContains,
		FileGlob:     s.FilePattern,
		Extensions:   exts,
		Title:        s.Title,
		Description:  s.Description,
		SuggestedFix: s.SuggestedFix,
		Severity:     sev,
		Category:     cat,
		Labels:       types.NormalizeLabels(s.Labels),
	}, nil
}

func (s repoRuleEntry) compile() (RepositoryRule, error) {
	if s.ID == "" {
		return RepositoryRule{}, fmt.Errorf("id is required")
	}
	if s.Title == "" {
		return RepositoryRule{}, fmt.Errorf("%s: title is required", s.ID)
	}
	var unless *regexp.Regexp
	if s.UnlessPath != "" {
		re, err := regexp.Compile(s.UnlessPath)
		if err != nil {
			return RepositoryRule{}, fmt.Errorf("%s: invalid unless_path: %w", s.ID, err)
		}
		unless = re
	}
	sev, cat, err := parseClassification(s.Severity, s.Category)
	if err != nil {
		return RepositoryRule{}, fmt.Errorf("%s: %w", s.ID, err)
	}

	return RepositoryRule{
		ID:           s.ID,
		UnlessPath:   unless,
		Title:        s.Title,
		Description:  s.Description,
		SuggestedFix: s.SuggestedFix,
		Severity:     sev,
		Category:     cat,
		Labels:       types.NormalizeLabels(s.Labels),
	}, nil
}

func parseClassification(severity, category string) (types.Severity, types.Category, error) {
	sev, err := types.ParseSeverity(severity)
	if err != nil {
		return "", "", err
	}
	cat, err := types.ParseCategory(category)
	if err != nil {
		return "", "", err
	}
	return sev, cat, nil
}
