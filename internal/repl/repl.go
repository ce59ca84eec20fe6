package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/proposals"
	"github.com/atim-assistant/atim/internal/types"
)

// Controller is the proposal lifecycle the shell drives.
type Controller interface {
	ListProposals(ctx context.Context) ([]*types.IssueProposal, error)
	Get(ctx context.Context, id string) (*types.IssueProposal, error)
	Approve(ctx context.Context, id string) (*proposals.ApproveResult, error)
	Reject(ctx context.Context, id string) (*types.IssueProposal, error)
	Refresh(ctx context.Context) error
	RepositoryStats(ctx context.Context) (*proposals.RepositoryStats, error)
	Summary() (proposals.Summary, bool)
	History(limit int) []*events.Event
}

// REPL represents the interactive review shell
type REPL struct {
	ctl        Controller
	repository string
	out        io.Writer
	rl         *readline.Instance
	ctx        context.Context
	commands   map[string]CommandHandler

	// ids from the last listing, so proposals can be addressed by number
	listed []string
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Controller Controller
	Repository string
	// Out receives all output (default: os.Stdout)
	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		ctl:        cfg.Controller,
		repository: cfg.Repository,
		out:        out,
		ctx:        context.Background(),
		commands:   make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("atim> "),
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s Unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["list"] = r.cmdList
	r.commands["ls"] = r.cmdList
	r.commands["show"] = r.cmdShow
	r.commands["approve"] = r.cmdApprove
	r.commands["reject"] = r.cmdReject
	r.commands["refresh"] = r.cmdRefresh
	r.commands["stats"] = r.cmdStats
	r.commands["history"] = r.cmdHistory
}

func (r *REPL) completer() readline.AutoCompleter {
	ids := readline.PcItemDynamic(func(string) []string {
		out := make([]string, 0, len(r.listed))
		for i := range r.listed {
			out = append(out, fmt.Sprintf("%d", i+1))
		}
		return append(out, r.listed...)
	})
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("list",
			readline.PcItem(string(types.StatusPending)),
			readline.PcItem(string(types.StatusRejected)),
			readline.PcItem(string(types.StatusPublished)),
		),
		readline.PcItem("show", ids),
		readline.PcItem("approve", ids),
		readline.PcItem("reject", ids),
		readline.PcItem("refresh"),
		readline.PcItem("stats"),
		readline.PcItem("history"),
		readline.PcItem("exit"),
	)
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Atim issue review"))
	if r.repository != "" {
		fmt.Fprintf(r.out, "Repository: %s\n", r.repository)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type 'list' to see proposals, 'help' for commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"list [status]", "List proposals, optionally filtered by status"},
		{"show <n|id>", "Show a proposal in full"},
		{"approve <n|id>", "Approve a proposal and publish it as an issue"},
		{"reject <n|id>", "Reject a proposal"},
		{"refresh", "Re-run analysis, keeping decisions already made"},
		{"stats", "Show repository statistics"},
		{"history [n]", "Show recent operations"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %s %s\n", green(fmt.Sprintf("%-16s", cmd.name)), cmd.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	return io.EOF
}
