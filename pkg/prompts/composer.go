package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fablegate/fable/pkg/narrative"
)

// Kind selects between the opening prompt and a continuation prompt.
type Kind string

const (
	KindInitial      Kind = "initial"
	KindContinuation Kind = "continuation"
)

// Prompt is a composed, model-ready instruction with its tuned
// generation parameters.
type Prompt struct {
	Text        string
	Temperature float64
	MaxTokens   int
}

// CustomMode is an author-defined game mode. Its description, when set,
// replaces the built-in mode guidance.
type CustomMode struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Config tunes composition. Zero values fall back to defaults.
type Config struct {
	ChoiceCount int                   // choices requested per scene (default 3)
	Language    string                // output language name (default "English")
	CustomModes map[string]CustomMode // custom mode id -> definition
}

const (
	DefaultChoiceCount = 3
	DefaultLanguage    = "English"

	// longHistoryThreshold is the story length past which the continuity
	// modifier is appended.
	longHistoryThreshold = 10
)

// Composer composes prompts. Compose is pure: the same context always
// yields the same text, which keeps golden tests possible.
type Composer struct {
	cfg Config
}

// NewComposer creates a composer.
func NewComposer(cfg Config) *Composer {
	if cfg.ChoiceCount <= 0 {
		cfg.ChoiceCount = DefaultChoiceCount
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Composer{cfg: cfg}
}

// Compose builds the prompt for one generation call.
func (c *Composer) Compose(ctx narrative.Context, kind Kind) Prompt {
	strategy := StrategyFor(ctx.GameMode)

	var sb strings.Builder
	if kind == KindInitial {
		c.writeOpening(&sb, ctx, strategy)
	} else {
		c.writeContinuation(&sb, ctx, strategy)
	}

	sb.WriteString("\n\n")
	sb.WriteString(qualityRequirements)

	return Prompt{
		Text:        sb.String(),
		Temperature: strategy.Creativity,
		MaxTokens:   strategy.Verbosity,
	}
}

func (c *Composer) writeOpening(sb *strings.Builder, ctx narrative.Context, strategy Strategy) {
	fmt.Fprintf(sb, "You are a seasoned interactive-fiction author, fluent in every genre.\n")
	fmt.Fprintf(sb, "Write an engaging opening scene for a %s story.\n\n", c.modeDescription(ctx.GameMode))

	sb.WriteString(CraftRequirements)
	sb.WriteString("\n\n")
	sb.WriteString(c.guidance(ctx.GameMode))
	sb.WriteString("\n\n")

	sb.WriteString("Writing requirements:\n")
	fmt.Fprintf(sb, "- Write in %s\n", c.cfg.Language)
	fmt.Fprintf(sb, "- Around %d words\n", strategy.Verbosity)
	sb.WriteString("- Open on a scene that pulls the player in\n")
	sb.WriteString("- Introduce the protagonist or their situation\n")
	sb.WriteString("- Seed an initial conflict or question\n")
	fmt.Fprintf(sb, "- Offer %d meaningful choices that steer the plot\n", c.cfg.ChoiceCount)
	sb.WriteString("- Give every choice a distinct consequence hint\n\n")

	sb.WriteString(initialSchema)
}

func (c *Composer) writeContinuation(sb *strings.Builder, ctx narrative.Context, strategy Strategy) {
	fmt.Fprintf(sb, "You are a seasoned interactive-fiction author, mid-way through a %s story.\n\n", c.modeDescription(ctx.GameMode))

	sb.WriteString(CraftRequirements)
	sb.WriteString("\n\n")
	sb.WriteString(c.guidance(ctx.GameMode))
	sb.WriteString("\n\n")

	sb.WriteString("Story so far:\n")
	fmt.Fprintf(sb, "Current scene: %s\n", ctx.CurrentScene)
	fmt.Fprintf(sb, "Player's choice: %s\n", lastChoice(ctx.Choices))
	fmt.Fprintf(sb, "History: %s\n", formatHistory(ctx.StoryHistory))
	fmt.Fprintf(sb, "Inventory: %s\n", formatList(ctx.Inventory))
	fmt.Fprintf(sb, "Variables: %s\n", formatVariables(ctx.Variables))
	fmt.Fprintf(sb, "Story arc: %s, conflict: %s, tone: %s\n", ctx.StoryArc, ctx.ConflictLevel, ctx.EmotionalState)
	if len(ctx.Themes) > 0 {
		fmt.Fprintf(sb, "Recurring themes: %s\n", strings.Join(ctx.Themes, ", "))
	}
	if len(ctx.KeyEvents) > 0 {
		fmt.Fprintf(sb, "Key events: %s\n", strings.Join(ctx.KeyEvents, "; "))
	}
	sb.WriteString("\n")

	sb.WriteString("Writing requirements:\n")
	fmt.Fprintf(sb, "- Write in %s\n", c.cfg.Language)
	fmt.Fprintf(sb, "- Around %d words\n", strategy.Verbosity)
	sb.WriteString("- Continue naturally from the player's choice\n")
	sb.WriteString("- Stay consistent with everything established so far\n")
	sb.WriteString("- Deepen characters and advance the main thread\n")
	fmt.Fprintf(sb, "- Offer %d meaningful choices that steer the plot\n", c.cfg.ChoiceCount)

	if len(ctx.StoryHistory) > longHistoryThreshold {
		sb.WriteString("\n")
		sb.WriteString(longStoryModifier)
		sb.WriteString("\n")
	}
	if ctx.ConflictLevel == narrative.ConflictHigh {
		sb.WriteString("\n")
		sb.WriteString(highConflictModifier)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(continuationSchema)
}

// modeDescription names the genre in prose. Custom modes use their
// author-given name.
func (c *Composer) modeDescription(mode string) string {
	if custom, ok := c.cfg.CustomModes[mode]; ok && custom.Name != "" {
		return custom.Name
	}
	return ModeDisplayName(mode)
}

// guidance picks the mode writing-guidance block. A custom mode with a
// description supplies its own; otherwise built-in guidance applies,
// with unknown modes falling back to adventure.
func (c *Composer) guidance(mode string) string {
	if custom, ok := c.cfg.CustomModes[mode]; ok && custom.Description != "" {
		return "Mode guidance:\n" + custom.Description
	}
	return GuidanceFor(mode)
}

func lastChoice(choices []string) string {
	if len(choices) == 0 {
		return "(none yet)"
	}
	return choices[len(choices)-1]
}

// formatHistory joins the most recent entries with arrows, flagging that
// earlier events were elided when the window is already compressed.
func formatHistory(history []string) string {
	if len(history) == 0 {
		return "the story is just beginning"
	}
	recent := history
	prefix := ""
	if len(history) > 5 {
		recent = history[len(history)-5:]
		prefix = "[earlier events summarized] ... -> "
	}
	return prefix + strings.Join(recent, " -> ")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(empty)"
	}
	return strings.Join(items, ", ")
}

// formatVariables renders variables as canonical JSON. encoding/json
// sorts map keys, which keeps composition deterministic.
func formatVariables(vars map[string]interface{}) string {
	if len(vars) == 0 {
		return "{}"
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return "{}"
	}
	return string(data)
}
