package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/state"
	"github.com/fablegate/fable/pkg/story"
)

const PlaceHolderText = "Write your own action, or press 1-9 to pick a choice..."

var gameModes = []string{"adventure", "mystery", "horror", "romance", "scifi", "fantasy"}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config        *ConsoleConfig
	client        *http.Client
	session       *state.Session
	node          *story.StoryNode
	storyViewport viewport.Model
	metaViewport  viewport.Model
	textarea      textarea.Model
	ready         bool
	width         int
	height        int
	err           error
	loading       bool

	// Streaming state
	streamCh  <-chan streamEvent
	streamBuf string // plain string so the model stays copyable

	// Session picker state
	showPicker      bool
	pickingMode     bool
	sessions        []*state.Session
	pickerIndex     int
	loadingSessions bool

	// Quit confirmation state
	showQuitModal bool

	// Transient status line (export confirmation etc.)
	status string

	progressTick int
}

type sessionsLoadedMsg struct {
	sessions []*state.Session
	err      error
}

type sessionSelectedMsg struct {
	session *state.Session
	err     error
}

type streamEventMsg struct {
	event streamEvent
	ok    bool
}

type navigatedMsg struct {
	turn *TurnResponse
	err  error
}

type exportedMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	storyPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	nodeTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	storyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 500
	ta.SetWidth(50)
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	storyVp := viewport.New(50, 20)
	storyVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:          cfg,
		client:          client,
		textarea:        ta,
		storyViewport:   storyVp,
		metaViewport:    metaVp,
		showPicker:      true,
		loadingSessions: true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadSessions()
}

func (m ConsoleUI) loadSessions() tea.Cmd {
	return func() tea.Msg {
		sessions, err := listSessions(m.client, m.config.APIBaseURL)
		return sessionsLoadedMsg{sessions, err}
	}
}

func (m ConsoleUI) selectSessionCmd(id string) tea.Cmd {
	return func() tea.Msg {
		s, err := selectSession(m.client, m.config.APIBaseURL, id)
		return sessionSelectedMsg{s, err}
	}
}

func (m ConsoleUI) navigateCmd(direction string, page int) tea.Cmd {
	return func() tea.Msg {
		turn, err := navigate(m.client, m.config.APIBaseURL, direction, page)
		return navigatedMsg{turn, err}
	}
}

func (m ConsoleUI) exportCmd() tea.Cmd {
	return func() tea.Msg {
		data, err := exportSession(m.client, m.config.APIBaseURL)
		if err != nil {
			return exportedMsg{err}
		}
		return exportedMsg{clipboard.WriteAll(string(data))}
	}
}

// waitForStream pulls the next event from an in-flight generation stream.
func waitForStream(ch <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		return streamEventMsg{event, ok}
	}
}

func progressTickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func (m ConsoleUI) beginTurn(ch <-chan streamEvent) (tea.Model, tea.Cmd) {
	m.loading = true
	m.progressTick = 0
	m.streamCh = ch
	m.streamBuf = ""
	m.status = ""
	m.writeStoryContent()
	return m, tea.Batch(waitForStream(ch), progressTickCmd())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showPicker {
		return m.updatePicker(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeStoryContent()
		m.writeMetadata()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil

		case tea.KeyPgUp:
			if !m.loading {
				return m, m.navigateCmd("prev", 0)
			}

		case tea.KeyPgDown:
			if !m.loading {
				return m, m.navigateCmd("next", 0)
			}

		case tea.KeyCtrlE:
			if !m.loading {
				return m, m.exportCmd()
			}

		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			ch := makeChoiceStream(context.Background(), m.client, m.config.APIBaseURL, "", input)
			return m.beginTurn(ch)

		default:
			// Bare digits pick a numbered choice when the input is empty
			if !m.loading && m.textarea.Value() == "" && m.node != nil {
				if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(m.node.Choices) {
					choice := m.node.Choices[n-1]
					ch := makeChoiceStream(context.Background(), m.client, m.config.APIBaseURL, choice.ID, "")
					return m.beginTurn(ch)
				}
			}
		}

	case streamEventMsg:
		if !msg.ok {
			// Stream closed without a done event
			m.loading = false
			m.streamCh = nil
			m.writeStoryContent()
			return m, nil
		}
		event := msg.event
		switch {
		case event.Err != nil:
			m.loading = false
			m.streamCh = nil
			m.err = event.Err
			m.writeStoryContent()
			return m, nil
		case event.Turn != nil:
			m.loading = false
			m.streamCh = nil
			m.err = nil
			m.session = event.Turn.Session
			m.node = event.Turn.Node
			m.writeStoryContent()
			m.writeMetadata()
			return m, nil
		default:
			m.streamBuf += event.Token
			m.writeStoryContent()
			return m, waitForStream(m.streamCh)
		}

	case navigatedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.session = msg.turn.Session
			m.node = msg.turn.Node
		}
		m.writeStoryContent()
		m.writeMetadata()

	case exportedMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("Export failed: " + msg.err.Error())
		} else {
			m.status = loadingStyle.Render("Save document copied to clipboard")
		}
		m.writeStoryContent()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeStoryContent()
			return m, progressTickCmd()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.storyViewport, vpCmd = m.storyViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) resize() {
	storyWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - storyWidth - 6
	m.storyViewport.Width = storyWidth - 2
	m.storyViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(storyWidth - 4)
}

func (m *ConsoleUI) writeStoryContent() {
	width := m.storyViewport.Width - 6
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("FABLE") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	if m.node != nil {
		content.WriteString(nodeTitleStyle.Render(m.node.Title) + "\n\n")
		content.WriteString(storyStyle.Render(wordwrap.String(m.node.Content, width)) + "\n\n")

		if !m.loading {
			for i, choice := range m.node.Choices {
				line := fmt.Sprintf("%d. %s", i+1, choice.Text)
				content.WriteString(choiceStyle.Render(wordwrap.String(line, width)) + "\n")
			}
			content.WriteString("\n")
		}
	}

	if m.loading {
		if m.streamBuf != "" {
			content.WriteString(wordwrap.String(m.streamBuf, width) + "\n\n")
		}
		content.WriteString(m.renderProgressBar() + "\n")
	}

	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	if m.status != "" {
		content.WriteString(m.status + "\n")
	}

	m.storyViewport.SetContent(content.String())
	m.storyViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() {
	if m.session == nil {
		return
	}
	s := m.session

	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")
	content.WriteString(s.Name + "\n")
	content.WriteString(prompts.ModeDisplayName(s.GameMode) + "\n\n")

	content.WriteString(fmt.Sprintf("Page %d of %d\n\n", s.CurrentPage+1, s.TotalPages))

	content.WriteString("Inventory:\n")
	if len(s.Inventory) == 0 {
		content.WriteString("Empty\n")
	} else {
		for _, item := range s.Inventory {
			content.WriteString("• " + item + "\n")
		}
	}
	content.WriteString("\n")

	if len(s.Variables) > 0 {
		content.WriteString("Variables:\n")
		for k, v := range s.Variables {
			content.WriteString(fmt.Sprintf("• %s: %v\n", k, v))
		}
		content.WriteString("\n")
	}

	content.WriteString("Keys:\n")
	content.WriteString("• 1-9: Pick choice\n")
	content.WriteString("• Enter: Custom action\n")
	content.WriteString("• PgUp/PgDn: Turn pages\n")
	content.WriteString("• Ctrl+E: Copy save\n")
	content.WriteString("• Ctrl+C: Quit\n")

	m.metaViewport.SetContent(content.String())
}

func (m ConsoleUI) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case sessionsLoadedMsg:
		m.loadingSessions = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.sessions = msg.sessions
		}

	case sessionSelectedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.node = nodeAtPage(msg.session)
		m.showPicker = false
		m.ready = true
		m.writeStoryContent()
		m.writeMetadata()
		m.textarea.Focus()
		return m, textarea.Blink

	case streamEventMsg:
		// New-session generation finishing while the picker shows its
		// loading state.
		if !msg.ok {
			m.loading = false
			return m, nil
		}
		event := msg.event
		switch {
		case event.Err != nil:
			m.loading = false
			m.streamCh = nil
			m.err = event.Err
			return m, nil
		case event.Turn != nil:
			m.loading = false
			m.streamCh = nil
			m.err = nil
			m.session = event.Turn.Session
			m.node = event.Turn.Node
			m.showPicker = false
			m.pickingMode = false
			m.ready = true
			m.writeStoryContent()
			m.writeMetadata()
			m.textarea.Focus()
			return m, textarea.Blink
		default:
			m.streamBuf += event.Token
			return m, waitForStream(m.streamCh)
		}

	case tea.KeyMsg:
		if m.loadingSessions || m.loading {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.pickingMode {
				m.pickingMode = false
				m.pickerIndex = 0
				return m, nil
			}
			m.showQuitModal = true
			return m, nil

		case tea.KeyUp:
			if m.pickerIndex > 0 {
				m.pickerIndex--
			}

		case tea.KeyDown:
			if m.pickerIndex < m.pickerMax() {
				m.pickerIndex++
			}

		case tea.KeyEnter:
			if m.pickingMode {
				mode := gameModes[m.pickerIndex]
				ch := startSessionStream(context.Background(), m.client, m.config.APIBaseURL, mode, "")
				m.loading = true
				m.streamCh = ch
				m.streamBuf = ""
				return m, waitForStream(ch)
			}
			if m.pickerIndex == 0 {
				// "Begin a new story" is the first entry
				m.pickingMode = true
				m.pickerIndex = 0
				return m, nil
			}
			selected := m.sessions[m.pickerIndex-1]
			m.loading = true
			return m, m.selectSessionCmd(selected.ID)
		}
	}

	return m, nil
}

func (m ConsoleUI) pickerMax() int {
	if m.pickingMode {
		return len(gameModes) - 1
	}
	return len(m.sessions)
}

func nodeAtPage(s *state.Session) *story.StoryNode {
	if s == nil || s.CurrentPage < 0 || s.CurrentPage >= len(s.Nodes) {
		return nil
	}
	return s.Nodes[s.CurrentPage].Node
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if !m.showPicker {
					m.textarea.Focus()
					return m, textarea.Blink
				}
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the story?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress is saved automatically.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to keep playing"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderPicker() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingSessions:
		content.WriteString(modalTitleStyle.Render("Loading..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Fetching your stories..."))

	case m.loading:
		content.WriteString(modalTitleStyle.Render("Opening Scene..."))
		content.WriteString("\n\n")
		if m.streamBuf != "" {
			content.WriteString(wordwrap.String(m.streamBuf, 54))
		} else {
			content.WriteString(loadingStyle.Render("The narrator is setting the stage..."))
		}

	case m.pickingMode:
		content.WriteString(modalTitleStyle.Render("Choose a Genre"))
		content.WriteString("\n\n")
		for i, mode := range gameModes {
			label := prompts.ModeDisplayName(mode)
			if i == m.pickerIndex {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("↑/↓ to navigate, Enter to begin, Esc to go back"))

	default:
		content.WriteString(modalTitleStyle.Render("Your Stories"))
		content.WriteString("\n\n")

		entries := []string{"+ Begin a new story"}
		for _, s := range m.sessions {
			entries = append(entries, fmt.Sprintf("%s (%s, %d pages)", s.Name, prompts.ModeDisplayName(s.GameMode), s.TotalPages))
		}
		for i, entry := range entries {
			if i == m.pickerIndex {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + entry))
			} else {
				content.WriteString(modalItemStyle.Render("  " + entry))
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("↑/↓ to navigate, Enter to select, Ctrl+C to exit"))

		if m.err != nil {
			content.WriteString("\n\n")
			content.WriteString(errorStyle.Render(m.err.Error()))
		}
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if m.showPicker {
		return m.renderPicker()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	storyWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - storyWidth - 6

	storyPanel := storyPanelStyle.Width(storyWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.storyViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", storyWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, storyPanel, metaPanel)
}

// renderProgressBar animates a bar while generation runs.
func (m ConsoleUI) renderProgressBar() string {
	usable := m.storyViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}
