// internal/strategy/rules.go
package strategy

import (
	"time"

	"github.com/arturvolkov/pumpsell-bot/internal/tracker"
)

// Action is the kind of sell decision produced by an evaluation pass.
type Action string

const (
	ActionNone     Action = "none"
	ActionSell     Action = "sell"
	ActionSequence Action = "sell_sequence"
)

// Rule identifies which rule produced a decision, for logging and the
// trading history audit trail.
type Rule string

const (
	RuleNone         Rule = ""
	RuleStagedProfit Rule = "staged_take_profit" // profit >= 100%
	RuleProtectGains Rule = "protect_gains"      // profit >= 75%, drawdown >= 25%
	RuleTrailingStop Rule = "trailing_stop"      // 10% <= profit < 75%, drawdown >= 15%
	RuleTimeout      Rule = "timeout"            // monitoring window elapsed
)

// Thresholds for the rule table. Percentages throughout.
const (
	StagedProfitThreshold = 100.0
	ProtectProfitFloor    = 75.0
	ProtectDrawdown       = 25.0
	TrailingProfitFloor   = 10.0
	TrailingDrawdown      = 15.0
)

// StagedSteps is the take-profit ladder for the staged exit: 25% of the
// holding, then 50% of the remainder, then everything left. Each step's
// percentage is relative to the holding at the time of the step.
var StagedSteps = []Step{
	{Percent: 25, PauseAfter: 2 * time.Second},
	{Percent: 50, PauseAfter: 3 * time.Second},
	{Percent: 100},
}

// Step is one leg of a staged sell with the pause to observe before the
// next leg, letting the feed reflect the partial sale.
type Step struct {
	Percent    float64
	PauseAfter time.Duration
}

// Decision is the outcome of one evaluation pass. Zero value means no
// action.
type Decision struct {
	Action          Action
	Rule            Rule
	Steps           []Step
	ProfitPercent   float64
	DrawdownPercent float64
}

// NoAction reports whether this decision requires nothing from the
// orchestrator.
func (d Decision) NoAction() bool {
	return d.Action == ActionNone || d.Action == ""
}

// Evaluate applies the prioritized rule table to a position snapshot. It is
// a pure function: the only state beyond the snapshot is the elapsed
// monitoring time and the staged flag that keeps the 100%-profit rule from
// firing twice for one token.
//
// Rules are mutually exclusive, first match wins:
//
//  1. profit >= 100% and not yet staged: staged exit 25% / 50% / 100%.
//  2. profit >= 75% and drawdown >= 25%: sell everything (protect gains
//     after a sharp pullback from a high base).
//  3. 10% <= profit < 75% and drawdown >= 15%: sell everything (trailing
//     stop for moderate gains).
//  4. monitoring window elapsed: sell everything.
//  5. otherwise no action.
//
// Rule 3's profit band is exclusive at 75 so a position at exactly 75%
// profit resolves to rule 2, never rule 3.
func Evaluate(pos tracker.Position, elapsed, maxDuration time.Duration, staged bool) Decision {
	profit := pos.ProfitPercent()
	drawdown := pos.DrawdownPercent()

	d := Decision{
		Action:          ActionNone,
		ProfitPercent:   profit,
		DrawdownPercent: drawdown,
	}

	if pos.Priced() {
		switch {
		case profit >= StagedProfitThreshold && !staged:
			d.Action = ActionSequence
			d.Rule = RuleStagedProfit
			d.Steps = StagedSteps
			return d

		case profit >= ProtectProfitFloor && drawdown >= ProtectDrawdown:
			d.Action = ActionSell
			d.Rule = RuleProtectGains
			d.Steps = []Step{{Percent: 100}}
			return d

		case profit >= TrailingProfitFloor && profit < ProtectProfitFloor && drawdown >= TrailingDrawdown:
			d.Action = ActionSell
			d.Rule = RuleTrailingStop
			d.Steps = []Step{{Percent: 100}}
			return d
		}
	}

	if elapsed >= maxDuration {
		d.Action = ActionSell
		d.Rule = RuleTimeout
		d.Steps = []Step{{Percent: 100}}
		return d
	}

	return d
}
