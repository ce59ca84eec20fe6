package analyzer

import (
	"path"
	"regexp"
	"strings"

	"github.com/atim-assistant/atim/internal/types"
)

// Rule is one entry of the file-level catalog. It fires at most once per
// file, at the line of its first match.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp

	// Absent inverts the rule: it fires when Pattern does NOT occur in the
	// file. Such proposals carry a file path but no line.
	Absent bool

	// Path predicates; all that are set must hold.
	PathContains string   // substring of the file path
	FileGlob     string   // path.Match pattern against the base name
	Extensions   []string // lower-case, with leading dot

	Title        string
	Description  string
	SuggestedFix string
	Severity     types.Severity
	Category     types.Category
	Labels       []string
}

// AppliesTo reports whether the rule's path predicates hold for p.
func (r *Rule) AppliesTo(p string) bool {
	if r.PathContains != "" && !strings.Contains(p, r.PathContains) {
		return false
	}
	if r.FileGlob != "" {
		if ok, _ := path.Match(r.FileGlob, path.Base(p)); !ok {
			return false
		}
	}
	if len(r.Extensions) > 0 {
		ext := strings.ToLower(path.Ext(p))
		for _, want := range r.Extensions {
			if ext == want {
				return true
			}
		}
		return false
	}
	return true
}

// RepositoryRule produces one proposal per pass without a source location.
type RepositoryRule struct {
	ID string

	// UnlessPath suppresses the rule when any scanned path matches it.
	UnlessPath *regexp.Regexp

	Title        string
	Description  string
	SuggestedFix string
	Severity     types.Severity
	Category     types.Category
	Labels       []string
}

// Fires reports whether the rule applies to a pass over paths. Nothing
// fires for an empty pass.
func (r *RepositoryRule) Fires(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	if r.UnlessPath == nil {
		return true
	}
	for _, p := range paths {
		if r.UnlessPath.MatchString(p) {
			return false
		}
	}
	return true
}

var headerExtensions = []string{".h", ".hpp"}

// BuiltinRules returns the default file-level catalog in evaluation order.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:          "security/strcpy",
			Pattern:     regexp.MustCompile(`strcpy\s*\(`),
			Title:       "Use of unsafe strcpy function",
			Description: "The code uses strcpy which is vulnerable to buffer overflows. Consider using strncpy or std::string.",
			Severity:    types.SeverityHigh,
			Category:    types.CategorySecurity,
			Labels:      []string{"security", "bug"},
		},
		{
			ID:          "security/sprintf",
			Pattern:     regexp.MustCompile(`\bsprintf\s*\(`),
			Title:       "Use of unsafe sprintf function",
			Description: "sprintf is vulnerable to buffer overflows. Use snprintf or std::string formatting.",
			Severity:    types.SeverityHigh,
			Category:    types.CategorySecurity,
			Labels:      []string{"security", "bug"},
		},
		{
			ID:          "security/rand",
			Pattern:     regexp.MustCompile(`\brand\s*\(`),
			Title:       "Use of predictable random number generation",
			Description: "rand() is not cryptographically secure. Use std::random_device or crypto-secure RNG for cryptographic operations.",
			Severity:    types.SeverityMedium,
			Category:    types.CategorySecurity,
			Labels:      []string{"security", "enhancement"},
		},
		{
			ID:          "performance/vector-push-back",
			Pattern:     regexp.MustCompile(`std::vector.*\.push_back\s*\(`),
			Title:       "Inefficient vector operations",
			Description: "Consider reserving vector capacity before multiple push_back operations to avoid reallocations.",
			Severity:    types.SeverityMedium,
			Category:    types.CategoryPerformance,
			Labels:      []string{"performance", "enhancement"},
		},
		{
			ID:          "performance/string-concat",
			Pattern:     regexp.MustCompile(`std::string.*\+.*std::string`),
			Title:       "Inefficient string concatenation",
			Description: "String concatenation with + operator creates temporary objects. Consider using std::stringstream or reserve() for better performance.",
			Severity:    types.SeverityLow,
			Category:    types.CategoryPerformance,
			Labels:      []string{"performance", "enhancement"},
		},
		{
			ID:          "quality/using-namespace-std",
			Pattern:     regexp.MustCompile(`using namespace std;`),
			Extensions:  headerExtensions,
			Title:       "Avoid using namespace std in headers",
			Description: "Using namespace std in headers can cause naming conflicts. Use specific using declarations or namespace qualifiers.",
			Severity:    types.SeverityMedium,
			Category:    types.CategoryEnhancement,
			Labels:      []string{"code-quality", "enhancement"},
		},
		{
			ID:          "quality/define-constant",
			Pattern:     regexp.MustCompile(`#define\s+[A-Z_]+`),
			Title:       "Consider using const instead of #define",
			Description: "Prefer const variables over #define for better type safety and debugging support.",
			Severity:    types.SeverityLow,
			Category:    types.CategoryEnhancement,
			Labels:      []string{"code-quality", "enhancement"},
		},
		{
			ID:           "bug/supply-calculation",
			Pattern:      regexp.MustCompile(`(?i)chain(\(\))?\.size\(\)\s*\*\s*10\.0`),
			PathContains: "main.cpp",
			Title:        "Incorrect supply calculation in /chain endpoint",
			Description:  "The total supply is incorrectly calculated using chain.size() * 10.0 instead of tracking the actual circulating supply",
			SuggestedFix: "Replace with: totalSupply = blockchain.getCurrentSupply();",
			Severity:     types.SeverityMedium,
			Category:     types.CategoryBug,
			Labels:       []string{"bug"},
		},
		{
			ID:           "bug/missing-current-supply",
			Pattern:      regexp.MustCompile(`double\s+getCurrentSupply\s*\(\s*\)\s*const`),
			Absent:       true,
			PathContains: "blockchain.cpp",
			Title:        "Missing getCurrentSupply() method in Blockchain class",
			Description:  "Need to implement a method to track and return the current supply of SLW tokens",
			SuggestedFix: currentSupplyFix,
			Severity:     types.SeverityMedium,
			Category:     types.CategoryBug,
			Labels:       []string{"bug"},
		},
	}
}

const currentSupplyFix = `// Add to the Blockchain class in blockchain.h:
double getCurrentSupply() const;

// Add implementation in blockchain.cpp:
double Blockchain::getCurrentSupply() const {
    double supply = 0.0;
    // Add pre-mined supply (35% of 555M)
    supply += 555000000.0 * 0.35;
    // Add block rewards (5 SLW per block)
    supply += getChain().size() * 5.0;
    return supply;
}`

// BuiltinRepositoryRules returns the default repository-wide catalog.
func BuiltinRepositoryRules() []RepositoryRule {
	return []RepositoryRule{
		{
			ID:          "documentation/api",
			UnlessPath:  regexp.MustCompile(`(?i)(^|/)docs?/.*api.*\.md$|(^|/)API\.md$`),
			Title:       "Add comprehensive API documentation",
			Description: "The blockchain API lacks comprehensive documentation. Consider adding detailed API docs with examples.",
			Severity:    types.SeverityMedium,
			Category:    types.CategoryDocumentation,
			Labels:      []string{"documentation", "enhancement"},
		},
		{
			ID:          "documentation/inline",
			Title:       "Add inline code documentation",
			Description: "Many functions lack inline documentation. Add Doxygen-style comments for better code maintainability.",
			Severity:    types.SeverityLow,
			Category:    types.CategoryDocumentation,
			Labels:      []string{"documentation", "enhancement"},
		},
		{
			ID:          "architecture/error-handling",
			Title:       "Implement proper error handling strategy",
			Description: "The codebase needs a consistent error handling strategy. Consider implementing custom exception classes and error codes.",
			Severity:    types.SeverityMedium,
			Category:    types.CategoryEnhancement,
			Labels:      []string{"architecture", "enhancement"},
		},
		{
			ID:          "architecture/logging",
			Title:       "Add comprehensive logging system",
			Description: "Implement a structured logging system for better debugging and monitoring of the blockchain application.",
			Severity:    types.SeverityMedium,
			Category:    types.CategoryEnhancement,
			Labels:      []string{"architecture", "enhancement"},
		},
	}
}
