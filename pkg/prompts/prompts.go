// Package prompts turns a narrative context into a model-ready
// instruction string with tuned generation parameters.
package prompts

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CraftRequirements is the cross-mode writing-craft block included in
// every prompt.
const CraftRequirements = `Craft requirements:
1. Show, don't tell: convey plot through action, dialogue, and sensory
   detail. Never state an emotion outright; let the reader infer it from
   trembling hands and a cold sweat.
2. Multi-sensory detail: engage sight, sound, touch, and smell so the
   environment is an organic part of the story.
3. Pacing: short sentences for tension and speed, longer sentences for
   depth and emotional groundwork; vary paragraph length.
4. Emotional depth: surface inner conflict and motive through small
   gestures and expressions; avoid one-note characters.
5. Escalating conflict: every scene carries inner or outer tension, and
   choices lead to consequences that matter.
6. Controlled reveal: hold back key information, foreshadow without
   giving away, and keep the reader leaning forward.`

// SystemPrompt is the fixed system message sent with every generation
// request.
const SystemPrompt = "You are a seasoned interactive-fiction author. " +
	"Write vivid, coherent story beats and always return a single strict JSON object."

// modeGuidance holds the per-mode writing-guidance blocks. Unknown modes
// fall back to the adventure guidance.
var modeGuidance = map[string]string{
	"adventure": `Adventure writing guidance:
- Build an air of mystery and the unknown that invites exploration
- Describe places in concrete detail so the world feels alive
- Set clear goals and challenges that reward progress
- Balance danger against opportunity for a tense, thrilling ride
- Emphasize the joy of discovery and the arc of growth`,

	"mystery": `Mystery writing guidance:
- Plant puzzles and clues with airtight internal logic
- Keep information asymmetric so the reader deduces alongside the hero
- Use red herrings sparingly to raise the difficulty
- Pace the reveals; never dump the truth at once
- Give suspects complex but believable motives`,

	"horror": `Horror writing guidance:
- Prefer suggestion and ambiguity; let imagination supply the fear
- Build dread gradually through an oppressive, uneasy atmosphere
- Favor psychological fear over visual shock
- Use sound and environment to unsettle
- Break calm moments with sudden, sharp turns`,

	"romance": `Romance writing guidance:
- Center the chemistry and emotional tension between characters
- Render shifts of feeling and inner life in fine detail
- Put credible obstacles between hearts
- Balance tenderness against dramatic conflict
- Let dialogue carry personality and the state of the relationship`,

	"scifi": `Science-fiction writing guidance:
- Ground the story in a plausible, well-built technological premise
- Explore what the technology does to people and society
- Keep the internal rules consistent
- Balance ideas against character
- Give the future world a distinct identity`,

	"fantasy": `Fantasy writing guidance:
- Establish a coherent magic system and the rules of the world
- Invent distinctive peoples, cultures, and histories
- Balance wonder against personal stakes and growth
- Never break the established rules of magic
- Aim for an epic, adventurous register`,
}

// modeNames are the human-readable names of the built-in modes, used in
// prompt text and default session names.
var modeNames = map[string]string{
	"adventure": "Adventure",
	"mystery":   "Mystery",
	"horror":    "Horror",
	"romance":   "Romance",
	"scifi":     "Sci-Fi",
	"fantasy":   "Fantasy",
}

var titleCaser = cases.Title(language.English)

// ModeDisplayName returns the display name for a mode id. Custom mode
// ids are title-cased with separators treated as spaces.
func ModeDisplayName(mode string) string {
	if name, ok := modeNames[mode]; ok {
		return name
	}
	cleaned := make([]rune, 0, len(mode))
	for _, r := range mode {
		if r == '_' || r == '-' {
			r = ' '
		}
		cleaned = append(cleaned, r)
	}
	return titleCaser.String(string(cleaned))
}

// Strategy is the fixed generation profile of one game mode: creativity
// maps to sampling temperature, verbosity to the output budget, and
// focus documents the mode's thematic emphasis (not enforced).
type Strategy struct {
	Creativity float64
	Verbosity  int
	Focus      []string
}

// strategies per built-in mode. Mystery runs cooler to keep deduction
// logical; fantasy runs hottest.
var strategies = map[string]Strategy{
	"adventure": {Creativity: 0.8, Verbosity: 1000, Focus: []string{"exploration", "discovery", "challenge", "growth"}},
	"mystery":   {Creativity: 0.7, Verbosity: 1200, Focus: []string{"clues", "deduction", "suspense", "revelation"}},
	"horror":    {Creativity: 0.85, Verbosity: 1100, Focus: []string{"atmosphere", "fear", "tension", "unknown"}},
	"romance":   {Creativity: 0.75, Verbosity: 1150, Focus: []string{"emotion", "relationship", "chemistry", "conflict"}},
	"scifi":     {Creativity: 0.85, Verbosity: 1200, Focus: []string{"technology", "future", "humanity", "exploration"}},
	"fantasy":   {Creativity: 0.9, Verbosity: 1250, Focus: []string{"magic", "adventure", "mythology", "heroism"}},
}

// StrategyFor returns the strategy for a mode, falling back to adventure
// for unknown and custom modes.
func StrategyFor(mode string) Strategy {
	if s, ok := strategies[mode]; ok {
		return s
	}
	return strategies["adventure"]
}

// GuidanceFor returns the writing-guidance block for a mode, falling
// back to adventure.
func GuidanceFor(mode string) string {
	if g, ok := modeGuidance[mode]; ok {
		return g
	}
	return modeGuidance["adventure"]
}

// initialSchema is the output contract for opening scenes.
const initialSchema = `Output format:
Return exactly one strict JSON object, nothing else:
{
  "title": "scene title",
  "content": "the scene, rich in sensory and emotional detail",
  "choices": [
    {"id": "choice1", "text": "what the player can do", "consequence": "a hint at where this leads"}
  ],
  "effects": {"mood": "current mood", "location": "current location"}
}`

// continuationSchema additionally allows gameplay side effects.
const continuationSchema = `Output format:
Return exactly one strict JSON object, nothing else:
{
  "title": "scene title",
  "content": "the scene, continuing naturally from the player's choice",
  "choices": [
    {"id": "choice1", "text": "what the player can do", "consequence": "a hint at where this leads"}
  ],
  "effects": {
    "add_item": ["item gained"],
    "remove_item": ["item lost"],
    "set_variable": {"name": "value"},
    "mood": "mood shift",
    "location": "location change"
  }
}`

// Conditional modifier blocks.
const (
	longStoryModifier = `Long-running story requirements:
- Keep every character true to the personality already established
- Pay off foreshadowing planted earlier
- Respect established continuity and pick up the pace where it drags`

	highConflictModifier = `High-conflict scene requirements:
- Intensify the tension and drama
- Use shorter, sharper sentences
- Stress the urgency of time running out`
)

// qualityRequirements closes every prompt.
const qualityRequirements = `Quality requirements:
1. Match the tone and conventions of the genre
2. Keep the narrative coherent and logical
3. Keep character behavior consistent with what is established
4. Make the choices meaningfully different, with real consequences
5. Avoid cliche and overused plot beats
6. Sustain suspense and pull`
