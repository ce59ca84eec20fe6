package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atim-assistant/atim/internal/types"
)

func byRule(props []*types.IssueProposal) map[string]*types.IssueProposal {
	m := make(map[string]*types.IssueProposal, len(props))
	for _, p := range props {
		m[p.RuleID] = p
	}
	return m
}

func TestRuleFiresOncePerFile(t *testing.T) {
	content := strings.Join([]string{
		"#include <cstring>",
		"void a(char* d, const char* s) { strcpy(d, s); }",
		"void b(char* d, const char* s) { strcpy(d, s); }",
		"void c(char* d, const char* s) { strcpy (d, s); }",
	}, "\n")

	props := NewDefault().Analyze("src/util.cpp", content)

	var strcpy []*types.IssueProposal
	for _, p := range props {
		if p.RuleID == "security/strcpy" {
			strcpy = append(strcpy, p)
		}
	}
	require.Len(t, strcpy, 1)
	require.NotNil(t, strcpy[0].LineNumber)
	assert.Equal(t, 2, *strcpy[0].LineNumber, "line of the first match")
	assert.Equal(t, types.SeverityHigh, strcpy[0].Severity)
	assert.Equal(t, types.CategorySecurity, strcpy[0].Category)
	assert.Equal(t, []string{"security", "bug"}, strcpy[0].Labels)
	assert.Equal(t, types.StatusPending, strcpy[0].Status)
	assert.NoError(t, strcpy[0].Validate())
}

func TestSupplyCalculationBug(t *testing.T) {
	content := "int main() {\n    crow::SimpleApp app;\n    double totalSupply = chain.size() * 10.0;\n}\n"

	props := byRule(NewDefault().Analyze("src/api/main.cpp", content))

	p, ok := props["bug/supply-calculation"]
	require.True(t, ok)
	assert.Equal(t, types.CategoryBug, p.Category)
	assert.Equal(t, types.SeverityMedium, p.Severity)
	assert.Contains(t, p.SuggestedFix, "getCurrentSupply")
	assert.Equal(t, "Incorrect supply calculation in /chain endpoint", p.Title)
	require.NotNil(t, p.LineNumber)
	assert.Equal(t, 3, *p.LineNumber)

	getter := byRule(NewDefault().Analyze("main.cpp", "totalSupply = blockchain.getChain().size() * 10.0;"))
	assert.Contains(t, getter, "bug/supply-calculation")

	// Same content under another file name does not trigger the rule.
	other := byRule(NewDefault().Analyze("src/api/server.cpp", content))
	assert.NotContains(t, other, "bug/supply-calculation")
}

func TestAbsentRule(t *testing.T) {
	a := NewDefault()

	missing := byRule(a.Analyze("src/core/blockchain.cpp", "class Blockchain {};"))
	p, ok := missing["bug/missing-current-supply"]
	require.True(t, ok)
	assert.Nil(t, p.LineNumber)
	assert.Equal(t, "src/core/blockchain.cpp", p.FilePath)

	present := byRule(a.Analyze("src/core/blockchain.cpp", "double getCurrentSupply() const { return 0; }"))
	assert.NotContains(t, present, "bug/missing-current-supply")
}

func TestBuiltinPatterns(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		rule    string
		fires   bool
	}{
		{"sprintf", "a.cpp", `sprintf(buf, "%d", x);`, "security/sprintf", true},
		{"snprintf is fine", "a.cpp", `snprintf(buf, n, "%d", x);`, "security/sprintf", false},
		{"rand", "a.cpp", "int r = rand();", "security/rand", true},
		{"srand is fine", "a.cpp", "srand(42);", "security/rand", false},
		{"push_back", "a.cpp", "std::vector<int> v; v.push_back(1);", "performance/vector-push-back", true},
		{"string concat", "a.cpp", "std::string c = std::string(a) + std::string(b);", "performance/string-concat", true},
		{"namespace std in header", "a.h", "using namespace std;", "quality/using-namespace-std", true},
		{"namespace std in source", "a.cpp", "using namespace std;", "quality/using-namespace-std", false},
		{"define", "a.h", "#define MAX_PEERS 8", "quality/define-constant", true},
	}

	a := NewDefault()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fired := byRule(a.Analyze(tt.path, tt.content))[tt.rule]
			assert.Equal(t, tt.fires, fired)
		})
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	content := "#define VERSION 1\nusing namespace std;\nint x = rand();\n"
	a := NewDefault()

	first := a.Analyze("include/node.h", content)
	second := a.Analyze("include/node.h", content)
	require.Len(t, second, len(first))

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].RuleID, second[i].RuleID)
	}

	// Catalog order is preserved.
	var order []string
	for _, p := range first {
		order = append(order, p.RuleID)
	}
	assert.Equal(t, []string{"security/rand", "quality/using-namespace-std", "quality/define-constant"}, order)

	// Ids differ between files and between rules.
	assert.NotEqual(t, ProposalID("security/rand", "a.cpp"), ProposalID("security/rand", "b.cpp"))
	assert.NotEqual(t, ProposalID("security/rand", "a.cpp"), ProposalID("security/strcpy", "a.cpp"))
}

func TestAnalyzeRepository(t *testing.T) {
	a := NewDefault()
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	assert.Empty(t, a.AnalyzeRepository(nil), "nothing fires for an empty pass")

	props := a.AnalyzeRepository([]string{"src/main.cpp"})
	require.Len(t, props, 4)
	for _, p := range props {
		assert.True(t, p.IsRepositoryWide())
		assert.Nil(t, p.LineNumber)
		assert.Equal(t, fixed, p.CreatedAt)
		assert.NoError(t, p.Validate())
	}
	assert.Equal(t, "Add comprehensive API documentation", props[0].Title)

	withDocs := a.AnalyzeRepository([]string{"src/main.cpp", "docs/api-reference.md"})
	assert.Len(t, withDocs, 3)
	assert.NotContains(t, byRule(withDocs), "documentation/api")
}

func TestSampleProposals(t *testing.T) {
	samples := SampleProposals()
	require.Len(t, samples, 5)

	again := SampleProposals()
	ids := map[string]bool{}
	for i, p := range samples {
		assert.NoError(t, p.Validate())
		assert.Equal(t, types.StatusPending, p.Status)
		assert.Equal(t, again[i].ID, p.ID)
		ids[p.ID] = true
	}
	assert.Len(t, ids, 5)

	assert.Equal(t, "src/core/blockchain.cpp:156", samples[0].Location())
	assert.Equal(t, "tests/", samples[3].Location())

	// Callers get fresh copies.
	samples[0].Status = types.StatusRejected
	assert.Equal(t, types.StatusPending, SampleProposals()[0].Status)
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
rules:
  - id: security/gets
    regex: "\\bgets\\s*\\("
    extensions: ["c", ".CPP"]
    title: Use of unsafe gets function
    description: gets cannot bound its input.
    severity: High
    category: security
    labels: [security, bug, security]
repository_rules:
  - id: documentation/contributing
    unless_path: "(?i)^CONTRIBUTING\\.md$"
    title: Add contributing guidelines
    description: Document how to submit changes.
    severity: low
    category: documentation
`)

	c, err := ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, c.Rules, 1)
	require.Len(t, c.RepositoryRules, 1)

	r := c.Rules[0]
	assert.Equal(t, types.SeverityHigh, r.Severity)
	assert.Equal(t, []string{".c", ".cpp"}, r.Extensions)
	assert.Equal(t, []string{"security", "bug"}, r.Labels)

	a, err := NewDefault().WithCatalog(c)
	require.NoError(t, err)
	files, repo := a.RuleCount()
	assert.Equal(t, len(BuiltinRules())+1, files)
	assert.Equal(t, len(BuiltinRepositoryRules())+1, repo)
	assert.Equal(t, "security/gets", a.Rules()[files-1].ID)
	assert.Equal(t, "documentation/contributing", a.RepositoryRules()[repo-1].ID)

	props := a.Analyze("src/io.cpp", "char b[8];\ngets(b);\n")
	require.NotEmpty(t, props)
	last := props[len(props)-1]
	assert.Equal(t, "security/gets", last.RuleID, "catalog rules run after built-ins")

	assert.NotContains(t, byRule(a.AnalyzeRepository([]string{"CONTRIBUTING.md"})), "documentation/contributing")

	// The base analyzer is unchanged.
	files, _ = NewDefault().RuleCount()
	assert.Equal(t, len(BuiltinRules()), files)
}

func TestWithCatalogRejectsBuiltinIDs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "file rule",
			yaml: `
rules:
  - id: security/strcpy
    regex: "strcpy"
    title: Shadowed strcpy
    description: Same id as a built-in.
    severity: low
    category: security
`,
		},
		{
			name: "repository rule",
			yaml: `
repository_rules:
  - id: documentation/api
    title: Shadowed API docs
    description: Same id as a built-in.
    severity: low
    category: documentation
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCatalog([]byte(tt.yaml))
			require.NoError(t, err)

			a, err := NewDefault().WithCatalog(c)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Contains(t, err.Error(), "conflicts with an existing rule")
		})
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "empty", yaml: "rules: []", wantErr: "no rules defined"},
		{name: "bad yaml", yaml: "rules: [", wantErr: "parsing YAML"},
		{name: "missing regex", yaml: "rules:\n  - id: x\n    title: t\n    severity: low\n    category: bug\n", wantErr: "regex is required"},
		{name: "bad regex", yaml: "rules:\n  - id: x\n    regex: \"(\"\n    title: t\n    severity: low\n    category: bug\n", wantErr: "invalid regex"},
		{name: "bad severity", yaml: "rules:\n  - id: x\n    regex: a\n    title: t\n    severity: urgent\n    category: bug\n", wantErr: "invalid severity"},
		{name: "bad category", yaml: "rules:\n  - id: x\n    regex: a\n    title: t\n    severity: low\n    category: style\n", wantErr: "invalid category"},
		{name: "missing title", yaml: "rules:\n  - id: x\n    regex: a\n    severity: low\n    category: bug\n", wantErr: "title is required"},
		{
			name:    "duplicate id",
			yaml:    "rules:\n  - {id: x, regex: a, title: t, severity: low, category: bug}\n  - {id: x, regex: b, title: u, severity: low, category: bug}\n",
			wantErr: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte("rules:\n  - {id: x, regex: a, title: t, severity: low, category: bug}\n"), 0644))

	c, err := LoadCatalog(p)
	require.NoError(t, err)
	assert.Len(t, c.Rules, 1)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
