// Package tui is the live terminal board behind `issues watch`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amonks/issues/board"
	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/amonks/issues/issue"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Subscriber streams store snapshots. client.Client implements it.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan issue.Snapshot, <-chan error)
}

// Options configures Run.
type Options struct {
	Subscriber Subscriber
	Writer     board.Writer
	// Identity is the signed-in user. Without one the board is read-only.
	Identity string
	Filter   issue.Filter
	Logger   *log.Logger
}

type inputKind int

const (
	inputNone inputKind = iota
	inputCreate
	inputAssign
)

type modalKind int

const (
	modalNone modalKind = iota
	modalHelp
	modalDelete
)

type frameMsg struct {
	frame board.Frame
}

type streamErrMsg struct {
	err error
}

type sendFailedMsg struct {
	err error
}

type model struct {
	ctx    context.Context
	send   func(context.Context, board.Event) error
	now    func() time.Time
	width  int
	height int

	frame       board.Frame
	issueList   list.Model
	selectedID  string
	input       textinput.Model
	inputKind   inputKind
	newPriority issue.Priority
	modal       confirmModal
	streamErr   string
}

type confirmModal struct {
	kind        modalKind
	message     string
	confirmText string
	cancelText  string
	selected    int
	targetID    string
}

// Run shows the board until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	if opts.Subscriber == nil {
		return fmt.Errorf("snapshot subscriber is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var program *tea.Program
	b := board.New(board.Options{
		Writer:   opts.Writer,
		Identity: opts.Identity,
		Filter:   opts.Filter,
		Logger:   opts.Logger,
		Render: func(frame board.Frame) {
			program.Send(frameMsg{frame: frame})
		},
	})
	program = tea.NewProgram(newModel(ctx, b.Send), tea.WithAltScreen(), tea.WithContext(ctx))

	snapshots, errs := opts.Subscriber.Subscribe(ctx)
	relay := make(chan issue.Snapshot)
	go func() {
		defer close(relay)
		for snapshot := range snapshots {
			select {
			case relay <- snapshot:
			case <-ctx.Done():
				return
			}
		}
		if err := <-errs; err != nil {
			program.Send(streamErrMsg{err: err})
		}
	}()
	go b.Run(ctx, relay)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, send func(context.Context, board.Event) error) model {
	issueList := list.New(nil, newIssueItemDelegate(), 0, 0)
	issueList.Title = "Issues"
	issueList.SetShowStatusBar(false)
	issueList.SetFilteringEnabled(false)
	issueList.SetShowHelp(false)
	issueList.SetShowPagination(false)
	issueList.DisableQuitKeybindings()

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = issue.MaxTitleLength

	return model{
		ctx:         ctx,
		send:        send,
		now:         time.Now,
		issueList:   issueList,
		input:       input,
		newPriority: issue.DefaultPriority,
		modal:       confirmModal{kind: modalNone},
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case frameMsg:
		m.handleFrame(msg.frame)
		return m, nil
	case streamErrMsg:
		m.streamErr = fmt.Sprintf("live updates stopped: %v", msg.err)
		return m, nil
	case sendFailedMsg:
		m.streamErr = fmt.Sprintf("board stopped: %v", msg.err)
		return m, nil
	}

	if m.modal.kind != modalNone {
		return m.updateModal(msg)
	}
	if m.inputKind != inputNone {
		return m.updateInput(msg)
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		if updated, cmd, handled := m.handleKey(key); handled {
			return updated, cmd
		}
	}

	var cmd tea.Cmd
	m.issueList, cmd = m.issueList.Update(msg)
	m.syncSelection()
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading issues..."
	}
	contentHeight := m.contentHeight()
	leftWidth, rightWidth := splitWidths(m.width)

	listPane := m.renderPane(m.issueList.View(), leftWidth, contentHeight, m.inputKind == inputNone)
	detailPane := m.renderPane(m.detailView(rightWidth-4), rightWidth, contentHeight, false)
	content := lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)

	parts := []string{m.renderHeader(), m.renderHelpLine(), content}
	if m.inputKind != inputNone {
		parts = append(parts, m.renderInput())
	}
	parts = append(parts, m.renderStatusLine())
	view := strings.Join(parts, "\n")
	if m.modal.kind != modalNone {
		view = m.renderModalOverlay(view)
	}
	return view
}

func (m *model) handleFrame(frame board.Frame) {
	m.frame = frame
	m.issueList.SetItems(issueItems(frame.Visible))
	if m.selectedID != "" {
		m.selectByID(m.selectedID)
	}
	if len(m.issueList.Items()) > 0 && m.issueList.Index() < 0 {
		m.issueList.Select(0)
	}
	m.syncSelection()
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit, true
	case "?":
		m.modal = confirmModal{kind: modalHelp}
		return m, nil, true
	case "f":
		filter := m.frame.Filter
		filter.Status = nextStatusFilter(filter.Status)
		return m, m.sendCmd(board.FilterEvent{Filter: filter}), true
	case "p":
		filter := m.frame.Filter
		filter.Priority = nextPriorityFilter(filter.Priority)
		return m, m.sendCmd(board.FilterEvent{Filter: filter}), true
	case "c":
		return m.startInput(inputCreate, ""), m.sendCmd(board.TitleInputEvent{Title: ""}), true
	case "a":
		item, ok := m.currentIssue()
		if !ok {
			return m, nil, true
		}
		return m.startInput(inputAssign, item.AssignedTo), nil, true
	case "o":
		return m, m.statusCmd(issue.StatusOpen), true
	case "s":
		return m, m.statusCmd(issue.StatusInProgress), true
	case "d":
		return m, m.statusCmd(issue.StatusDone), true
	case "x":
		item, ok := m.currentIssue()
		if !ok {
			return m, nil, true
		}
		m.modal = confirmModal{
			kind:        modalDelete,
			message:     fmt.Sprintf("Delete %s %q?", item.ID, item.Title),
			confirmText: "Delete",
			cancelText:  "Cancel",
			selected:    1,
			targetID:    item.ID,
		}
		return m, nil, true
	}
	return m, nil, false
}

func (m model) statusCmd(status issue.Status) tea.Cmd {
	item, ok := m.currentIssue()
	if !ok {
		return nil
	}
	return m.sendCmd(board.StatusChangeEvent{ID: item.ID, Status: status})
}

func (m model) startInput(kind inputKind, value string) model {
	m.inputKind = kind
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
	if kind == inputCreate {
		m.newPriority = issue.DefaultPriority
		m.input.Placeholder = "Title"
	} else {
		m.input.Placeholder = "Assignee (empty to unassign)"
	}
	m.resize()
	return m
}

func (m model) stopInput() model {
	m.inputKind = inputNone
	m.input.Blur()
	m.input.SetValue("")
	m.resize()
	return m
}

func (m model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			kind := m.inputKind
			m = m.stopInput()
			if kind == inputCreate {
				return m, m.sendCmd(board.TitleInputEvent{Title: ""})
			}
			return m, nil
		case "tab":
			if m.inputKind == inputCreate {
				m.newPriority = nextPriority(m.newPriority)
				return m, nil
			}
		case "enter":
			return m.submitInput()
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.inputKind == inputCreate && m.input.Value() != before {
		return m, tea.Batch(cmd, m.sendCmd(board.TitleInputEvent{Title: m.input.Value()}))
	}
	return m, cmd
}

func (m model) submitInput() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	kind := m.inputKind
	m = m.stopInput()
	switch kind {
	case inputCreate:
		return m, m.sendCmd(board.SubmitEvent{Issue: issue.NewIssue{Title: value, Priority: m.newPriority}})
	case inputAssign:
		item, ok := m.currentIssue()
		if !ok {
			return m, nil
		}
		return m, m.sendCmd(board.AssignEvent{ID: item.ID, AssignedTo: internalstrings.TrimSpace(value)})
	}
	return m, nil
}

func (m model) updateModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.modal.kind == modalHelp {
		switch key.String() {
		case "?", "esc":
			m.modal = confirmModal{kind: modalNone}
			return m, nil
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil
	}
	switch key.String() {
	case "left", "right", "tab", "shift+tab", "backtab":
		if m.modal.selected == 0 {
			m.modal.selected = 1
		} else {
			m.modal.selected = 0
		}
		return m, nil
	case "enter":
		return m.resolveModal(m.modal.selected == 0)
	case "esc":
		return m.resolveModal(false)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m model) resolveModal(confirm bool) (tea.Model, tea.Cmd) {
	modal := m.modal
	m.modal = confirmModal{kind: modalNone}
	if !confirm {
		return m, nil
	}
	if modal.kind == modalDelete {
		return m, m.sendCmd(board.DeleteEvent{ID: modal.targetID})
	}
	return m, nil
}

// sendCmd hands ev to the board off the UI goroutine. The board renders by
// sending to the program, so a synchronous send here could deadlock.
func (m model) sendCmd(ev board.Event) tea.Cmd {
	send := m.send
	ctx := m.ctx
	return func() tea.Msg {
		if send == nil {
			return nil
		}
		if err := send(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (m model) currentIssue() (issue.Issue, bool) {
	item := m.issueList.SelectedItem()
	if item == nil {
		return issue.Issue{}, false
	}
	current, ok := item.(issueItem)
	return current.issue, ok
}

func (m *model) syncSelection() {
	if item, ok := m.currentIssue(); ok {
		m.selectedID = item.ID
	}
}

func (m *model) selectByID(id string) {
	for i, item := range m.issueList.Items() {
		if current, ok := item.(issueItem); ok && current.issue.ID == id {
			m.issueList.Select(i)
			return
		}
	}
}

func (m model) contentHeight() int {
	height := m.height - 3
	if m.inputKind != inputNone {
		height -= 2
	}
	if height < 1 {
		height = 1
	}
	return height
}

func (m *model) resize() {
	contentHeight := m.contentHeight()
	leftWidth, _ := splitWidths(m.width)
	listHeight := contentHeight - 2
	if listHeight < 1 {
		listHeight = 1
	}
	listWidth := leftWidth - 4
	if listWidth < 1 {
		listWidth = 1
	}
	m.issueList.SetSize(listWidth, listHeight)
	m.input.Width = m.width - 4
}

func splitWidths(width int) (int, int) {
	left := width / 2
	if left < 30 {
		left = 30
	}
	if left > width-20 {
		left = width / 2
	}
	right := width - left
	if right < 20 {
		right = 20
		left = width - right
	}
	return left, right
}

func (m model) detailView(width int) string {
	if !m.frame.Loaded {
		return valueMuted.Render("Waiting for the first snapshot...")
	}
	item, ok := m.currentIssue()
	if !ok {
		if m.frame.Total == 0 {
			return valueMuted.Render("No issues yet. Press c to create one.")
		}
		return valueMuted.Render("No issues match the filter.")
	}
	detail := renderDetail(item, m.now(), width)
	allowed := issue.AllowedTransitions(item.Status)
	moves := make([]string, 0, len(allowed))
	for _, status := range allowed {
		if status != item.Status {
			moves = append(moves, status.DisplayName())
		}
	}
	if len(moves) > 0 {
		detail += "\n\n" + valueMuted.Render("Can move to: "+strings.Join(moves, ", "))
	}
	return detail
}

func (m model) renderHeader() string {
	title := headerTitleStyle.Render("Issues")
	filter := fmt.Sprintf(" status:%s priority:%s  %d of %d",
		orAll(string(m.frame.Filter.Status)), orAll(string(m.frame.Filter.Priority)), len(m.frame.Visible), m.frame.Total)
	identity := "read-only"
	if m.frame.Identity != "" {
		identity = m.frame.Identity
	}
	content := title + filter
	right := valueMuted.Render(identity + "  ? help")
	spacerWidth := m.width - lipgloss.Width(content) - lipgloss.Width(right)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	return headerStyle.Width(m.width).Render(content + strings.Repeat(" ", spacerWidth) + right)
}

func orAll(value string) string {
	if value == "" {
		return issue.FilterAll
	}
	return value
}

func (m model) renderPane(content string, width, height int, focused bool) string {
	style := paneStyle
	if focused {
		style = paneActiveStyle
	}
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return style.Width(width).Height(height).Render(content)
}

func (m model) renderInput() string {
	label := "New issue"
	if m.inputKind == inputAssign {
		label = "Assign"
	}
	header := labelStyle.Render(label)
	if m.inputKind == inputCreate {
		header += valueMuted.Render(fmt.Sprintf("  priority: %s (tab to change)", m.newPriority.DisplayName()))
	}
	lines := []string{header, m.input.View()}
	if m.inputKind == inputCreate && len(m.frame.Similar) > 0 {
		lines = append(lines, warningStyle.Render(truncateText("Possible duplicates: "+similarSummary(m.frame.Similar), m.width)))
	}
	return strings.Join(lines, "\n")
}

func similarSummary(similar []issue.Issue) string {
	parts := make([]string, 0, len(similar))
	for _, item := range similar {
		parts = append(parts, fmt.Sprintf("%s %q (%s)", item.ID, item.Title, item.Status.DisplayName()))
	}
	return strings.Join(parts, "; ")
}

func (m model) renderStatusLine() string {
	switch {
	case m.streamErr != "":
		return statusErrorStyle.Render(m.streamErr)
	case m.frame.Err != "":
		return statusErrorStyle.Render(m.frame.Err)
	case m.frame.Pending > 0:
		return valueMuted.Render("Saving...")
	case m.frame.Notice != "":
		text := m.frame.Notice
		if len(m.frame.Similar) > 0 && m.inputKind == inputNone {
			return warningStyle.Render(truncateText(text+". Possible duplicates: "+similarSummary(m.frame.Similar), m.width))
		}
		return statusSuccessStyle.Render(text)
	}
	return ""
}

func (m model) renderHelpLine() string {
	text := m.helpSummary()
	if internalstrings.IsBlank(text) {
		return ""
	}
	return helpBarStyle.Width(m.width).Render(truncateText(text, m.width))
}

func (m model) helpSummary() string {
	switch m.inputKind {
	case inputCreate:
		return "Keys: enter create | tab priority | esc cancel"
	case inputAssign:
		return "Keys: enter assign | esc cancel"
	}
	return "Keys: up/down move | c new | o/s/d open/start/done | a assign | x delete | f/p filter | ? help | q quit"
}

func (m model) renderModalOverlay(content string) string {
	if m.modal.kind == modalNone {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.modalView())
}

func (m model) modalView() string {
	modalStyle := lipgloss.NewStyle().Border(borderASCII).Padding(1, 2)
	if m.modal.kind == modalHelp {
		return modalStyle.Render(helpContent())
	}
	options := []string{m.modal.confirmText, m.modal.cancelText}
	buttons := make([]string, 0, len(options))
	for i, option := range options {
		style := valueMuted
		if i == m.modal.selected {
			style = selectedBorder
		}
		buttons = append(buttons, style.Render("["+option+"]"))
	}
	return modalStyle.Render(strings.Join([]string{m.modal.message, "", strings.Join(buttons, " ")}, "\n"))
}

func helpContent() string {
	lines := []string{
		labelStyle.Render("Keys"),
		"up/down, j/k   move",
		"c              new issue",
		"o              reopen",
		"s              start (in progress)",
		"d              done",
		"a              assign",
		"x              delete",
		"f              cycle status filter",
		"p              cycle priority filter",
		"q              quit",
		"",
		valueMuted.Render("Open issues must be started before they can be done."),
		"",
		valueMuted.Render("Press ? or esc to close"),
	}
	return strings.Join(lines, "\n")
}

func nextStatusFilter(current issue.StatusFilter) issue.StatusFilter {
	order := []issue.StatusFilter{issue.AllStatuses}
	for _, status := range issue.ValidStatuses() {
		order = append(order, issue.StatusFilter(status))
	}
	return order[(indexOf(order, current)+1)%len(order)]
}

func nextPriorityFilter(current issue.PriorityFilter) issue.PriorityFilter {
	order := []issue.PriorityFilter{issue.AllPriorities}
	for _, priority := range issue.ValidPriorities() {
		order = append(order, issue.PriorityFilter(priority))
	}
	return order[(indexOf(order, current)+1)%len(order)]
}

func nextPriority(current issue.Priority) issue.Priority {
	order := issue.ValidPriorities()
	return order[(indexOf(order, current)+1)%len(order)]
}

// indexOf treats a missing value as the first entry.
func indexOf[T comparable](values []T, target T) int {
	for i, value := range values {
		if value == target {
			return i
		}
	}
	return 0
}
