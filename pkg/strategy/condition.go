package strategy

import (
	"fmt"
	"strings"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

// Node types. Composites combine children; leaves test one aspect of the
// state triple. New leaf types register in leafRegistry.
const (
	NodeAnd         = "and"
	NodeOr          = "or"
	NodeScoreMargin = "score_margin"
	NodeGameTime    = "game_time"
)

type Direction string

const (
	DirectionLeading  Direction = "leading"
	DirectionTrailing Direction = "trailing"
)

// TrackedSide selects which team a strategy's margin conditions are defined
// against. It must be explicit in configuration; assuming the home team is a
// known source of silent misfires for away-oriented strategies.
type TrackedSide string

const (
	TrackedHome TrackedSide = "home"
	TrackedAway TrackedSide = "away"
)

// Node is one tagged node in a condition tree. It is a tree, never a graph:
// children are held by value, so cycles cannot be expressed.
type Node struct {
	Type string `mapstructure:"type"`

	// score_margin parameters.
	MinMargin int       `mapstructure:"min_margin"`
	Direction Direction `mapstructure:"direction"`

	// game_time parameters. MaxClock is optional; nil disables the check.
	MinPeriod int      `mapstructure:"min_period"`
	MaxClock  *float64 `mapstructure:"max_clock"`

	// Composite children, evaluated in declared order.
	Children []Node `mapstructure:"conditions"`
}

// EvalContext is the state triple a condition tree is evaluated against,
// plus the strategy's tracked side.
type EvalContext struct {
	Game     models.GameState
	Market   models.MarketState
	Position *models.Position
	Tracked  TrackedSide
}

// trackedMargin is the signed margin from the tracked team's perspective.
func (c EvalContext) trackedMargin() int {
	if c.Tracked == TrackedAway {
		return -c.Game.Margin()
	}
	return c.Game.Margin()
}

type leafSpec struct {
	validate func(n *Node) error
	eval     func(n *Node, ctx EvalContext) bool
	describe func(n *Node, ctx EvalContext) string
}

var leafRegistry = map[string]leafSpec{
	NodeScoreMargin: {
		validate: validateScoreMargin,
		eval:     evalScoreMargin,
		describe: describeScoreMargin,
	},
	NodeGameTime: {
		validate: validateGameTime,
		eval:     evalGameTime,
		describe: describeGameTime,
	},
}

// Validate checks the whole tree eagerly so that evaluation can never fail.
// Unknown node types, empty composites, and out-of-domain parameters are all
// configuration errors caught here, at load time.
func Validate(n *Node) error {
	switch n.Type {
	case NodeAnd, NodeOr:
		if len(n.Children) == 0 {
			return fmt.Errorf("%q node must have at least one child", n.Type)
		}
		for i := range n.Children {
			if err := Validate(&n.Children[i]); err != nil {
				return fmt.Errorf("%s[%d]: %w", n.Type, i, err)
			}
		}
		return nil
	case "":
		return fmt.Errorf("condition node missing type")
	default:
		spec, ok := leafRegistry[n.Type]
		if !ok {
			return fmt.Errorf("unknown condition type %q", n.Type)
		}
		return spec.validate(n)
	}
}

// Eval evaluates the tree against the state triple. Pure: no side effects,
// no dependency on anything but the arguments. Validate must have passed;
// an unvalidated unknown node evaluates false rather than panicking.
func Eval(n *Node, ctx EvalContext) bool {
	switch n.Type {
	case NodeAnd:
		for i := range n.Children {
			if !Eval(&n.Children[i], ctx) {
				return false
			}
		}
		return true
	case NodeOr:
		for i := range n.Children {
			if Eval(&n.Children[i], ctx) {
				return true
			}
		}
		return false
	default:
		spec, ok := leafRegistry[n.Type]
		if !ok {
			return false
		}
		return spec.eval(n, ctx)
	}
}

// Explain describes the leaf conditions that fired, for the signal's reason
// string. Only meaningful after Eval returned true.
func Explain(n *Node, ctx EvalContext) string {
	switch n.Type {
	case NodeAnd, NodeOr:
		var parts []string
		for i := range n.Children {
			child := &n.Children[i]
			if Eval(child, ctx) {
				parts = append(parts, Explain(child, ctx))
			}
		}
		sep := " and "
		if n.Type == NodeOr {
			sep = " or "
		}
		return strings.Join(parts, sep)
	default:
		spec, ok := leafRegistry[n.Type]
		if !ok {
			return ""
		}
		return spec.describe(n, ctx)
	}
}

func validateScoreMargin(n *Node) error {
	if n.MinMargin < 1 {
		return fmt.Errorf("score_margin: min_margin must be a positive integer, got %d", n.MinMargin)
	}
	switch n.Direction {
	case DirectionLeading, DirectionTrailing:
		return nil
	case "":
		return fmt.Errorf("score_margin: direction is required")
	default:
		return fmt.Errorf("score_margin: direction must be %q or %q, got %q",
			DirectionLeading, DirectionTrailing, n.Direction)
	}
}

func evalScoreMargin(n *Node, ctx EvalContext) bool {
	margin := ctx.trackedMargin()
	if n.Direction == DirectionTrailing {
		margin = -margin
	}
	// The tracked team must hold the lead (or deficit) by at least min_margin.
	return margin >= n.MinMargin
}

func describeScoreMargin(n *Node, ctx EvalContext) string {
	margin := ctx.trackedMargin()
	if margin < 0 {
		margin = -margin
	}
	return fmt.Sprintf("margin %d >= %d (%s %s)", margin, n.MinMargin, ctx.Tracked, n.Direction)
}

func validateGameTime(n *Node) error {
	if n.MinPeriod < 1 {
		return fmt.Errorf("game_time: min_period must be a positive integer, got %d", n.MinPeriod)
	}
	if n.MaxClock != nil && *n.MaxClock < 0 {
		return fmt.Errorf("game_time: max_clock must be non-negative, got %v", *n.MaxClock)
	}
	return nil
}

func evalGameTime(n *Node, ctx EvalContext) bool {
	if ctx.Game.Period < n.MinPeriod {
		return false
	}
	if n.MaxClock != nil && ctx.Game.ClockSeconds > *n.MaxClock {
		return false
	}
	return true
}

func describeGameTime(n *Node, ctx EvalContext) string {
	if n.MaxClock != nil {
		return fmt.Sprintf("period %d >= %d, clock %.0fs <= %.0fs",
			ctx.Game.Period, n.MinPeriod, ctx.Game.ClockSeconds, *n.MaxClock)
	}
	return fmt.Sprintf("period %d >= %d", ctx.Game.Period, n.MinPeriod)
}
