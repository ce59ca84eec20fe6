package analyzer

import (
	"time"

	"github.com/atim-assistant/atim/internal/types"
)

// sampleEpoch fixes CreatedAt so the sample set is identical across calls.
var sampleEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SampleProposals returns the fixed illustrative set shown when the target
// repository cannot be read. Ids are stable across calls.
func SampleProposals() []*types.IssueProposal {
	samples := []*types.IssueProposal{
		{
			ID:           "sample_1",
			Title:        "Implement proper memory management in blockchain core",
			Description:  "The blockchain core needs better memory management to prevent memory leaks in long-running operations.",
			Severity:     types.SeverityHigh,
			Category:     types.CategoryBug,
			FilePath:     "src/core/blockchain.cpp",
			LineNumber:   types.IntPtr(156),
			SuggestedFix: "Use smart pointers (std::unique_ptr, std::shared_ptr) instead of raw pointers",
			Labels:       []string{"memory", "bug", "core"},
		},
		{
			ID:           "sample_2",
			Title:        "Add input validation for transaction amounts",
			Description:  "Transaction amounts should be validated to prevent negative or zero amounts.",
			Severity:     types.SeverityMedium,
			Category:     types.CategorySecurity,
			FilePath:     "src/core/transaction.cpp",
			LineNumber:   types.IntPtr(89),
			SuggestedFix: "Add validation: if (amount <= 0) throw InvalidTransactionException();",
			Labels:       []string{"security", "validation", "transaction"},
		},
		{
			ID:           "sample_3",
			Title:        "Optimize database queries for large blockchain",
			Description:  "Database queries need optimization for handling large blockchain datasets efficiently.",
			Severity:     types.SeverityMedium,
			Category:     types.CategoryPerformance,
			FilePath:     "src/persistence/database.cpp",
			LineNumber:   types.IntPtr(234),
			SuggestedFix: "Add database indexes and implement query optimization",
			Labels:       []string{"performance", "database", "optimization"},
		},
		{
			ID:           "sample_4",
			Title:        "Add comprehensive unit tests",
			Description:  "The codebase lacks comprehensive unit tests. Add tests for all core functionality.",
			Severity:     types.SeverityMedium,
			Category:     types.CategoryEnhancement,
			FilePath:     "tests/",
			SuggestedFix: "Implement unit tests using Google Test or Catch2 framework",
			Labels:       []string{"testing", "enhancement", "quality"},
		},
		{
			ID:           "sample_5",
			Title:        "Implement proper thread safety in staking mechanism",
			Description:  "The staking mechanism needs proper thread safety to handle concurrent staking operations.",
			Severity:     types.SeverityHigh,
			Category:     types.CategoryBug,
			FilePath:     "src/core/staking.cpp",
			LineNumber:   types.IntPtr(67),
			SuggestedFix: "Add mutex locks around staking operations and use atomic operations where appropriate",
			Labels:       []string{"threading", "bug", "staking"},
		},
	}

	for _, p := range samples {
		p.RuleID = "sample"
		p.Status = types.StatusPending
		p.CreatedAt = sampleEpoch
	}
	return samples
}
