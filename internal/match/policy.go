package match

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/window"
)

// Action is the decision taken when a period comes up empty or the
// selected cover falls short of the threshold.
type Action int

const (
	// ActionSkip drops the current period (or pairing) and moves on.
	ActionSkip Action = iota

	// ActionAbort halts the whole run.
	ActionAbort

	// ActionSkipAll skips the current period and every later period that
	// hits the same condition, without asking again.
	ActionSkipAll

	// ActionAcceptPartial keeps whatever was selected and continues: an
	// under-covered period is used as-is, and a primary with no
	// secondary candidates stays in the job list unpaired.
	ActionAcceptPartial
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionAbort:
		return "abort"
	case ActionSkipAll:
		return "skip-all"
	case ActionAcceptPartial:
		return "accept-partial"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Shortfall describes the condition a Resolver is asked to rule on.
type Shortfall struct {
	Period window.Period

	// Empty is true when the period produced zero candidates; otherwise
	// the selection exists but covers less than the threshold.
	Empty   bool
	Percent float64
}

// Resolver decides what to do about a shortfall. The orchestrator never
// embeds the decision: front-ends supply a Static resolver for batch
// runs or a Prompt resolver for interactive ones.
type Resolver interface {
	Resolve(ctx context.Context, s Shortfall) (Action, error)
}

// Static always answers with a fixed action.
type Static struct {
	Action Action
}

func (s Static) Resolve(_ context.Context, _ Shortfall) (Action, error) {
	return s.Action, nil
}

// Prompt resolves shortfalls by asking on a terminal. Invalid input is
// rejected and re-prompted, never silently defaulted.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func (p *Prompt) Resolve(_ context.Context, s Shortfall) (Action, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	for {
		if s.Empty {
			fmt.Fprintf(p.Out, "No products found for %s to %s. Continue? [y=skip/n=abort/y_all=skip all]: ",
				s.Period.Start.Format("2006-01-02"), s.Period.End.Format("2006-01-02"))
		} else {
			fmt.Fprintf(p.Out, "Only %.2f%% of the region covered for %s to %s. Continue? [y=skip/n=abort/y_all=skip all/a=use available area]: ",
				s.Percent, s.Period.Start.Format("2006-01-02"), s.Period.End.Format("2006-01-02"))
		}
		line, err := p.reader.ReadString('\n')
		if err != nil && line == "" {
			return ActionAbort, fmt.Errorf("failed to read policy response: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y":
			return ActionSkip, nil
		case "n":
			return ActionAbort, nil
		case "y_all":
			return ActionSkipAll, nil
		case "a":
			if !s.Empty {
				return ActionAcceptPartial, nil
			}
		}
		fmt.Fprintln(p.Out, "Unrecognised response.")
	}
}
