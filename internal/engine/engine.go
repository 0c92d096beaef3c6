package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fablegate/fable/internal/services"
	"github.com/fablegate/fable/internal/storage"
	"github.com/fablegate/fable/pkg/narrative"
	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/state"
	"github.com/fablegate/fable/pkg/story"
	"github.com/fablegate/fable/pkg/textfilter"
)

var (
	// ErrGenerationInProgress is returned when a turn is requested while a
	// previous generation call is still running.
	ErrGenerationInProgress = errors.New("engine: generation already in progress")

	// ErrNoActiveSession is returned by operations that need a selected
	// session when none is selected.
	ErrNoActiveSession = errors.New("engine: no active session")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("engine: session not found")

	// ErrUnknownChoice is returned when a choice id does not exist on the
	// current node and no custom text was supplied.
	ErrUnknownChoice = errors.New("engine: unknown choice")
)

// Config tunes the engine's narrative and composition layers.
type Config struct {
	Narrative narrative.Config
	Prompts   prompts.Config
	Stream    bool
	Rating    string // content rating; G/PG/PG-13 turn on profanity filtering
}

// Engine drives sessions: it owns the in-memory session collection and the
// active session's graph, and serializes every mutation behind one mutex.
// At most one generation call runs at a time; overlapping turn requests
// fail fast with ErrGenerationInProgress instead of queueing.
type Engine struct {
	mu         sync.Mutex
	generating bool

	cfg       Config
	generator services.Generator
	store     *storage.Gateway
	logger    *slog.Logger

	sessions  *state.Collection
	graph     *story.Graph // graph of the active session
	builder   *narrative.Builder
	composer  *prompts.Composer
	sanitizer *textfilter.Sanitizer // nil when the rating allows raw output
}

// New creates an engine. All collaborators come in through the
// constructor; the engine holds no global state.
func New(cfg Config, generator services.Generator, store *storage.Gateway, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		generator: generator,
		store:     store,
		logger:    logger,
		sessions:  state.NewCollection(),
		graph:     story.NewGraph(),
		builder:   narrative.NewBuilder(cfg.Narrative),
		composer:  prompts.NewComposer(cfg.Prompts),
	}
	if textfilter.FamilyFriendly(cfg.Rating) {
		e.sanitizer = textfilter.NewSanitizer()
	}
	return e
}

// LoadAll restores the session collection from storage, reconciling local
// and remote copies. The previously active session resumes when its
// pointer survives; otherwise the most recently updated session is
// selected, and an empty store starts with nothing selected.
func (e *Engine) LoadAll(ctx context.Context) error {
	records, activeID, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions = state.NewCollection()
	for _, s := range records {
		e.sessions.Put(s)
	}
	if activeID == "" {
		if recent := e.sessions.MostRecent(); recent != nil {
			activeID = recent.ID
		}
	}
	e.sessions.ActiveID = activeID
	e.loadActiveGraph()

	e.logger.Info("Sessions loaded", "count", len(records), "active", activeID)
	return nil
}

// loadActiveGraph rebuilds the graph from the active session's node pairs.
// Callers hold e.mu.
func (e *Engine) loadActiveGraph() {
	e.graph.Reset()
	if active := e.sessions.Active(); active != nil {
		e.graph.Load(active.Nodes)
	}
}

// Active returns the active session, or nil.
func (e *Engine) Active() *state.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Active()
}

// Sessions returns all sessions ordered most recently updated first.
func (e *Engine) Sessions() []*state.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Sorted()
}

// Generating reports whether a generation call is in flight.
func (e *Engine) Generating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generating
}

// NodeAtCurrentPage returns the node the page pointer rests on, or nil.
func (e *Engine) NodeAtCurrentPage() *story.StoryNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := e.sessions.Active()
	if active == nil {
		return nil
	}
	return e.graph.NodeAt(active.CurrentPage)
}

// beginGeneration acquires the single-generation gate.
func (e *Engine) beginGeneration() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generating {
		return ErrGenerationInProgress
	}
	e.generating = true
	return nil
}

func (e *Engine) endGeneration() {
	e.mu.Lock()
	e.generating = false
	e.mu.Unlock()
}

// StartSession creates a session for the given mode, generates its opening
// node, and selects it. The session record is persisted before generation,
// so a failed opening leaves a created-but-empty session behind rather
// than losing the player's slot.
func (e *Engine) StartSession(ctx context.Context, mode, name string, onToken func(string)) (*state.Session, error) {
	if err := e.beginGeneration(); err != nil {
		return nil, err
	}
	defer e.endGeneration()

	s := state.NewSession(mode, name)
	if s.Name == "" {
		s.Name = fmt.Sprintf("%s %s", prompts.ModeDisplayName(mode), time.Now().Format("Jan 2 15:04"))
	}

	e.mu.Lock()
	e.sessions.Put(s)
	e.sessions.ActiveID = s.ID
	e.graph.Reset()
	e.mu.Unlock()
	e.persist(ctx, s)
	e.persistActiveID(ctx, s.ID)

	prompt := e.composer.Compose(e.builder.Build(s, ""), prompts.KindInitial)
	draft, err := e.generate(ctx, prompt, onToken)
	if err != nil {
		return s, err
	}

	e.mu.Lock()
	node := e.nodeFromDraft(draft)
	if err := e.graph.Insert(node); err != nil {
		e.mu.Unlock()
		return s, fmt.Errorf("failed to insert opening node: %w", err)
	}
	s.CurrentNode = node.ID
	s.CurrentPage = 0
	s.ApplyEffects(node.Effects)
	e.syncGraph(s)
	e.mu.Unlock()

	e.persist(ctx, s)
	e.logger.Info("Session started", "id", s.ID, "mode", mode)
	return s, nil
}

// MakeChoice advances the active session by one turn. choiceID selects
// from the current node's choices; customText, when non-empty, takes
// precedence and synthesizes a free-text choice. Nothing in the session
// mutates until generation succeeds.
func (e *Engine) MakeChoice(ctx context.Context, choiceID, customText string, onToken func(string)) (*story.StoryNode, error) {
	if err := e.beginGeneration(); err != nil {
		return nil, err
	}
	defer e.endGeneration()

	e.mu.Lock()
	s := e.sessions.Active()
	if s == nil || s.CurrentNode == "" {
		e.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	current, err := e.graph.Get(s.CurrentNode)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	choiceText := customText
	if choiceText == "" {
		choice := current.FindChoice(choiceID)
		if choice == nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownChoice, choiceID)
		}
		choiceText = choice.Text
	}
	e.mu.Unlock()

	prompt := e.composer.Compose(e.builder.Build(s, choiceText), prompts.KindContinuation)
	draft, err := e.generate(ctx, prompt, onToken)
	if err != nil {
		return nil, err
	}

	// Generation succeeded; apply the whole turn.
	e.mu.Lock()
	node := e.nodeFromDraft(draft)
	if err := e.graph.Insert(node); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}
	if err := e.graph.MarkSelectedChoice(current.ID, choiceText); err != nil {
		e.logger.Warn("Failed to finalize choice", "node", current.ID, "error", err)
	}
	s.History = append(s.History, current.ID)
	s.StoryHistory = append(s.StoryHistory, fmt.Sprintf("%s: %s", current.Title, choiceText))
	s.CurrentNode = node.ID
	s.CurrentPage = e.graph.PageCount() - 1
	s.ApplyEffects(node.Effects)
	e.syncGraph(s)
	e.mu.Unlock()

	e.persist(ctx, s)
	return node, nil
}

// Direction selects how Navigate moves the page pointer.
type Direction string

const (
	NavNext Direction = "next"
	NavPrev Direction = "prev"
	NavGoto Direction = "goto"
)

// Navigate moves the active session's page pointer. Goto pages are
// 1-based; out-of-bounds targets are silent no-ops. Navigation never
// creates history entries.
func (e *Engine) Navigate(ctx context.Context, dir Direction, page int) error {
	e.mu.Lock()
	s := e.sessions.Active()
	if s == nil {
		e.mu.Unlock()
		return ErrNoActiveSession
	}

	target := s.CurrentPage
	switch dir {
	case NavNext:
		target++
	case NavPrev:
		target--
	case NavGoto:
		target = page - 1
	}
	if target < 0 || target >= e.graph.PageCount() {
		e.mu.Unlock()
		return nil
	}
	s.CurrentPage = target
	if node := e.graph.NodeAt(target); node != nil {
		s.CurrentNode = node.ID
	}
	e.mu.Unlock()

	e.persist(ctx, s)
	return nil
}

// SelectSession switches the active session.
func (e *Engine) SelectSession(ctx context.Context, id string) (*state.Session, error) {
	e.mu.Lock()
	s := e.sessions.Get(id)
	if s == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.sessions.ActiveID = id
	e.loadActiveGraph()
	e.mu.Unlock()

	e.persistActiveID(ctx, id)
	return s, nil
}

// ResetSession clears the active session back to empty, keeping its id,
// name, and mode.
func (e *Engine) ResetSession(ctx context.Context) error {
	e.mu.Lock()
	s := e.sessions.Active()
	if s == nil {
		e.mu.Unlock()
		return ErrNoActiveSession
	}
	s.Clear()
	e.graph.Reset()
	e.mu.Unlock()

	e.persist(ctx, s)
	return nil
}

// DeleteSession removes a session from the collection and storage.
// Deleting the active session leaves nothing selected.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	e.mu.Lock()
	wasActive := e.sessions.ActiveID == id
	if !e.sessions.Delete(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if wasActive {
		e.graph.Reset()
	}
	e.mu.Unlock()

	if err := e.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	if wasActive {
		e.persistActiveID(ctx, "")
	}
	return nil
}

// Export serializes the active session as a portable save document.
func (e *Engine) Export() ([]byte, error) {
	e.mu.Lock()
	s := e.sessions.Active()
	e.mu.Unlock()
	if s == nil {
		return nil, ErrNoActiveSession
	}
	return state.Export(s)
}

// Import restores a session from a save document, adds it to the
// collection under a fresh id, and selects it.
func (e *Engine) Import(ctx context.Context, data []byte) (*state.Session, error) {
	s, err := state.Import(data)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sessions.Put(s)
	e.sessions.ActiveID = s.ID
	e.loadActiveGraph()
	e.mu.Unlock()

	e.persist(ctx, s)
	e.persistActiveID(ctx, s.ID)
	e.logger.Info("Session imported", "id", s.ID, "pages", s.TotalPages)
	return s, nil
}

// generate runs one generation call with the configured streaming mode.
func (e *Engine) generate(ctx context.Context, prompt prompts.Prompt, onToken func(string)) (*story.NodeDraft, error) {
	opts := services.GenerateOptions{
		Stream:  e.cfg.Stream && onToken != nil,
		OnToken: onToken,
	}
	draft, err := e.generator.Generate(ctx, prompt, opts)
	if err != nil {
		e.logger.Error("Generation failed", "error", err)
		return nil, err
	}
	return draft, nil
}

// nodeFromDraft assigns an id and timestamp to a draft, sanitizing the
// prose when the content rating requires it. Callers hold e.mu.
func (e *Engine) nodeFromDraft(draft *story.NodeDraft) *story.StoryNode {
	node := &story.StoryNode{
		ID:        e.graph.NextNodeID(),
		Title:     draft.Title,
		Content:   draft.Content,
		Choices:   draft.Choices,
		Effects:   draft.Effects,
		CreatedAt: time.Now().UnixMilli(),
	}
	if e.sanitizer != nil {
		node.Title = e.sanitizer.Sanitize(node.Title)
		node.Content = e.sanitizer.Sanitize(node.Content)
		for i := range node.Choices {
			node.Choices[i].Text = e.sanitizer.Sanitize(node.Choices[i].Text)
		}
	}
	return node
}

// syncGraph writes the graph snapshot back onto the session. Callers hold
// e.mu.
func (e *Engine) syncGraph(s *state.Session) {
	s.Nodes = e.graph.Pairs()
	s.TotalPages = e.graph.PageCount()
}

// persist saves a session, bumping its reconciliation timestamp first.
// The store gets a snapshot taken under the lock: the live session keeps
// mutating on the next turn while the store serializes. Storage failures
// are logged, not surfaced: play continues on the in-memory state and
// the next successful save catches up.
func (e *Engine) persist(ctx context.Context, s *state.Session) {
	e.mu.Lock()
	s.Touch()
	snapshot := s.Clone()
	e.mu.Unlock()
	if err := e.store.SaveSession(ctx, snapshot); err != nil {
		e.logger.Error("Failed to persist session", "id", s.ID, "error", err)
	}
}

func (e *Engine) persistActiveID(ctx context.Context, id string) {
	if err := e.store.SaveActiveID(ctx, id); err != nil {
		e.logger.Error("Failed to persist active pointer", "id", id, "error", err)
	}
}
