package proposals

import (
	"log/slog"
	"time"

	"github.com/atim-assistant/atim/internal/types"
)

// Pass is the authoritative proposal set produced by one analysis run,
// keyed by id. Proposals are owned by the pass; callers only see clones.
type Pass struct {
	Seq       int
	Sample    bool
	CreatedAt time.Time

	order []string
	byID  map[string]*types.IssueProposal
}

func newPass(seq int, proposals []*types.IssueProposal, sample bool, logger *slog.Logger) *Pass {
	p := &Pass{
		Seq:       seq,
		Sample:    sample,
		CreatedAt: time.Now(),
		order:     make([]string, 0, len(proposals)),
		byID:      make(map[string]*types.IssueProposal, len(proposals)),
	}
	for _, prop := range proposals {
		if _, dup := p.byID[prop.ID]; dup {
			logger.Warn("dropping proposal with duplicate id", "proposal_id", prop.ID, "title", prop.Title)
			continue
		}
		if prop.Status == "" {
			prop.Status = types.StatusPending
		}
		p.byID[prop.ID] = prop
		p.order = append(p.order, prop.ID)
	}
	return p
}

func (p *Pass) get(id string) *types.IssueProposal {
	return p.byID[id]
}

// Len returns the number of proposals in the pass.
func (p *Pass) Len() int {
	return len(p.order)
}

// list returns clones in analysis order.
func (p *Pass) list() []*types.IssueProposal {
	out := make([]*types.IssueProposal, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id].Clone())
	}
	return out
}

// carryOver copies lifecycle state from prev for every id present in both
// passes. Returns how many proposals kept a non-pending state.
func (p *Pass) carryOver(prev *Pass) int {
	if prev == nil {
		return 0
	}
	carried := 0
	for id, old := range prev.byID {
		cur, ok := p.byID[id]
		if !ok || old.Status == types.StatusPending {
			continue
		}
		cur.Status = old.Status
		cur.RemoteIssueURL = old.RemoteIssueURL
		cur.RemoteIssueNumber = nil
		if old.RemoteIssueNumber != nil {
			cur.RemoteIssueNumber = types.IntPtr(*old.RemoteIssueNumber)
		}
		carried++
	}
	return carried
}

// counts tallies proposals by status.
func (p *Pass) counts() map[types.Status]int {
	out := make(map[types.Status]int, 4)
	for _, prop := range p.byID {
		out[prop.Status]++
	}
	return out
}
