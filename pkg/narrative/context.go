// Package narrative turns a session's raw history into the bounded,
// relevance-ranked context object fed to prompt composition.
package narrative

import (
	"math"
	"strings"

	"github.com/fablegate/fable/pkg/state"
)

// Story-arc phases, derived from how far the story has run.
const (
	ArcBeginning   = "beginning"
	ArcDevelopment = "development"
	ArcClimax      = "climax"
	ArcResolution  = "resolution"
)

// Conflict levels.
const (
	ConflictLow    = "low"
	ConflictMedium = "medium"
	ConflictHigh   = "high"
)

// Context is the ephemeral view over a session used to build one
// generation prompt. It is constructed fresh before every call and
// discarded after.
type Context struct {
	CurrentScene string
	GameMode     string
	Choices      []string // bounded recent choice texts, pending choice last
	StoryHistory []string // bounded, possibly compressed
	Inventory    []string
	Variables    map[string]interface{}

	// Best-effort inferred metadata. Well-typed defaults are guaranteed;
	// accuracy is not.
	StoryArc       string
	ConflictLevel  string
	EmotionalState string
	Themes         []string
	KeyEvents      []string
}

// Config tunes the context window. Zero values fall back to defaults.
type Config struct {
	MaxHistoryItems    int  // story-history budget (default 20)
	MaxChoiceHistory   int  // choice-history budget (default 50)
	DisableCompression bool // truncate instead of compressing over-budget story history
}

const (
	DefaultMaxHistoryItems  = 20
	DefaultMaxChoiceHistory = 50

	// recentShare is the fraction of the history budget kept verbatim
	// from the most recent entries; the rest is sampled from earlier
	// entries so early plot anchors survive long sessions.
	recentShare = 0.7
)

// Builder builds contexts. The zero Config yields default limits with
// compression enabled.
type Builder struct {
	cfg Config
}

// NewBuilder creates a context builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.MaxHistoryItems <= 0 {
		cfg.MaxHistoryItems = DefaultMaxHistoryItems
	}
	if cfg.MaxChoiceHistory <= 0 {
		cfg.MaxChoiceHistory = DefaultMaxChoiceHistory
	}
	return &Builder{cfg: cfg}
}

// Build derives the prompt context for a session. pendingChoice, when
// non-empty, is the choice the player just made, appended as the newest
// entry of the choice history. Build never fails: an empty session yields
// a minimal "just starting" context.
func (b *Builder) Build(s *state.Session, pendingChoice string) Context {
	scene := s.CurrentNode
	if scene == "" {
		scene = "just starting"
	}

	ctx := Context{
		CurrentScene: scene,
		GameMode:     s.GameMode,
		Choices:      b.choiceHistory(s, pendingChoice),
		StoryHistory: b.storyHistory(s.StoryHistory),
		Inventory:    s.Inventory,
		Variables:    s.Variables,
	}

	historyLen := len(s.StoryHistory)
	ctx.StoryArc = storyArc(historyLen)
	ctx.ConflictLevel = conflictLevel(historyLen)
	ctx.EmotionalState = emotionalState(s)
	ctx.Themes = matchThemes(s.StoryHistory)
	ctx.KeyEvents = keyEvents(s.StoryHistory)
	return ctx
}

// choiceHistory extracts choice texts from the "title: choice" summaries,
// appends the pending choice, and keeps the most recent entries within
// budget.
func (b *Builder) choiceHistory(s *state.Session, pendingChoice string) []string {
	choices := make([]string, 0, len(s.StoryHistory)+1)
	for _, entry := range s.StoryHistory {
		if _, choice, ok := strings.Cut(entry, ": "); ok {
			choices = append(choices, strings.TrimSpace(choice))
		}
	}
	if pending := strings.TrimSpace(pendingChoice); pending != "" {
		choices = append(choices, pending)
	}
	if len(choices) > b.cfg.MaxChoiceHistory {
		choices = choices[len(choices)-b.cfg.MaxChoiceHistory:]
	}
	return choices
}

// storyHistory windows the story summaries to the configured budget.
func (b *Builder) storyHistory(history []string) []string {
	if b.cfg.DisableCompression || len(history) <= b.cfg.MaxHistoryItems {
		if len(history) > b.cfg.MaxHistoryItems {
			return history[len(history)-b.cfg.MaxHistoryItems:]
		}
		return history
	}
	return compressHistory(history, b.cfg.MaxHistoryItems)
}

// compressHistory keeps the most recent ~70% of the budget verbatim and
// fills the rest by uniform sampling across the earlier entries,
// preserving original order. Output length is exactly maxItems.
func compressHistory(history []string, maxItems int) []string {
	recentCount := int(math.Ceil(float64(maxItems) * recentShare))
	if recentCount > maxItems {
		recentCount = maxItems
	}
	recent := history[len(history)-recentCount:]

	earlyBudget := maxItems - recentCount
	if earlyBudget == 0 {
		out := make([]string, 0, maxItems)
		return append(out, recent...)
	}

	early := history[:len(history)-recentCount]
	stride := int(math.Ceil(float64(len(early)) / float64(earlyBudget)))
	out := make([]string, 0, maxItems)
	for i := 0; i < len(early) && len(out) < earlyBudget; i += stride {
		out = append(out, early[i])
	}
	// Under-filled sampling (short early history) widens the recent window
	// instead of shrinking the result.
	if missing := earlyBudget - len(out); missing > 0 {
		extra := history[len(history)-recentCount-missing : len(history)-recentCount]
		out = append(out, extra...)
	}
	return append(out, recent...)
}

func storyArc(historyLen int) string {
	switch {
	case historyLen < 5:
		return ArcBeginning
	case historyLen < 15:
		return ArcDevelopment
	case historyLen < 25:
		return ArcClimax
	default:
		return ArcResolution
	}
}

func conflictLevel(historyLen int) string {
	switch {
	case historyLen < 5:
		return ConflictLow
	case historyLen < 15:
		return ConflictMedium
	default:
		return ConflictHigh
	}
}

// modeEmotions are the per-mode default emotional tones used when the
// session carries no explicit mood.
var modeEmotions = map[string]string{
	"horror":    "tense",
	"romance":   "romantic",
	"mystery":   "curious",
	"adventure": "excited",
	"scifi":     "wonder",
	"fantasy":   "magical",
}

func emotionalState(s *state.Session) string {
	for _, key := range []string{"mood", "atmosphere"} {
		if v, ok := s.Variables[key].(string); ok && v != "" {
			return v
		}
	}
	if emotion, ok := modeEmotions[s.GameMode]; ok {
		return emotion
	}
	return "neutral"
}

// themeVocabulary maps a theme to the keywords that signal it. Matching
// is best-effort; no match is not an error.
var themeVocabulary = map[string][]string{
	"exploration": {"explore", "discover", "unknown", "journey"},
	"friendship":  {"friend", "companion", "help", "support"},
	"growth":      {"learn", "grow", "change", "overcome"},
	"sacrifice":   {"sacrifice", "cost", "lose", "give up"},
	"love":        {"love", "heart", "romance", "longing"},
}

// themeOrder keeps theme output deterministic across map iteration.
var themeOrder = []string{"exploration", "friendship", "growth", "sacrifice", "love"}

func matchThemes(history []string) []string {
	if len(history) == 0 {
		return []string{}
	}
	content := strings.ToLower(strings.Join(history, " "))
	themes := make([]string, 0, len(themeOrder))
	for _, theme := range themeOrder {
		for _, keyword := range themeVocabulary[theme] {
			if strings.Contains(content, keyword) {
				themes = append(themes, theme)
				break
			}
		}
	}
	return themes
}

// eventMarkers flag history entries worth repeating back to the model.
var eventMarkers = []string{"suddenly", "first time", "decide", "discover", "encounter", "reveal"}

func keyEvents(history []string) []string {
	events := make([]string, 0)
	for _, entry := range history {
		lower := strings.ToLower(entry)
		for _, marker := range eventMarkers {
			if strings.Contains(lower, marker) {
				events = append(events, entry)
				break
			}
		}
	}
	if len(events) > 10 {
		events = events[len(events)-10:]
	}
	return events
}
