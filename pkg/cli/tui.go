package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/devports/kdcdash/pkg/detect"
	"github.com/devports/kdcdash/pkg/fetch"
	"github.com/devports/kdcdash/pkg/log"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/process"
	"github.com/devports/kdcdash/pkg/reconcile"
	"github.com/devports/kdcdash/pkg/view"
)

// DashboardCmd runs the interactive dashboard until the operator quits
func (a *App) DashboardCmd(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec := a.newReconciler(ctx, a.sched)
	model := newDashModel(ctx, a, rec)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Request emits from inside Update, so subscribers must never call
	// p.Send directly; a pump goroutine forwards in order.
	events := make(chan reconcile.Event, 256)
	unsubscribe := rec.Subscribe(func(ev reconcile.Event) {
		select {
		case events <- ev:
		default:
			log.Warn("dropped reconciler event", "id", ev.ID, "kind", ev.Kind.String())
		}
	})
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				p.Send(eventMsg{ev: ev})
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type dashTab int
type viewMode int
type confirmKind int

const (
	tabProjects dashTab = iota
	tabGit
	tabPorts
	tabGuide
	tabCount
)

var tabNames = [tabCount]string{
	tabProjects: "Projects",
	tabGit:      "Git sync",
	tabPorts:    "Port registry",
	tabGuide:    "Guide",
}

const (
	modeBrowse viewMode = iota
	modeConfirm
	modeAdd
	modeHelp
)

const (
	confirmDelete confirmKind = iota
	confirmStartAll
	confirmStopAll
	confirmShutdown
)

type confirmState struct {
	kind   confirmKind
	prompt string
	id     string
}

// syncOutcome is the pass/fail indicator shown after a git sync command
type syncOutcome struct {
	ok      bool
	message string
}

// dashModel represents the dashboard state. Project data lives in the app's
// store and busy markers in the reconciler; the model only holds UI state.
type dashModel struct {
	app *App
	rec *reconcile.Reconciler
	ctx context.Context

	width      int
	height     int
	lastUpdate time.Time

	tab      dashTab
	mode     viewMode
	selected int

	confirm     *confirmState
	form        addForm
	cmdStatus   string
	syncResults map[string]syncOutcome

	spinner spinner.Model
	help    help.Model
	guide   viewport.Model
}

func newDashModel(ctx context.Context, app *App, rec *reconcile.Reconciler) dashModel {
	guide := viewport.New(80, 20)
	guide.SetContent(guideText)
	return dashModel{
		app:         app,
		rec:         rec,
		ctx:         ctx,
		mode:        modeBrowse,
		syncResults: make(map[string]syncOutcome),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:        help.New(),
		guide:       guide,
	}
}

func (m dashModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd(m.app.cfg.RefreshInterval), m.spinner.Tick)
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.guide.Width = max(msg.Width-4, 20)
		m.guide.Height = max(msg.Height-10, 5)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd(m.app.cfg.RefreshInterval))
	case reloadMsg:
		return m, m.refreshCmd()
	case refreshedMsg:
		m.lastUpdate = msg.at
		if m.cmdStatus == reloadingStatus {
			m.cmdStatus = ""
		}
		m.clampSelection()
		return m, nil
	case eventMsg:
		m.handleEvent(msg.ev)
		m.clampSelection()
		return m, nil
	case opDoneMsg:
		return m.handleOpDone(msg)
	case addResultMsg:
		return m.handleAddResult(msg)
	}

	if m.mode == modeAdd {
		var cmd tea.Cmd
		m.form, cmd = m.form.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m dashModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeConfirm:
		switch msg.String() {
		case "y", "Y", "enter":
			cmd := m.executeConfirm(true)
			return m, cmd
		case "n", "N", "esc":
			cmd := m.executeConfirm(false)
			return m, cmd
		}
		return m, nil
	case modeAdd:
		return m.handleFormKey(msg)
	case modeHelp:
		switch msg.String() {
		case "?", "esc", "q":
			m.mode = modeBrowse
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.mode = modeHelp
		return m, nil
	case key.Matches(msg, keys.NextTab):
		m.switchTab((m.tab + 1) % tabCount)
		return m, nil
	case key.Matches(msg, keys.PrevTab):
		m.switchTab((m.tab + tabCount - 1) % tabCount)
		return m, nil
	case key.Matches(msg, keys.Reload):
		m.cmdStatus = reloadingStatus
		return m, m.refreshCmd()
	case key.Matches(msg, keys.StartAll):
		m.prepareConfirm(confirmStartAll, "Start every project?", "")
		return m, nil
	case key.Matches(msg, keys.StopAll):
		m.prepareConfirm(confirmStopAll, "Stop every project?", "")
		return m, nil
	case key.Matches(msg, keys.Shutdown):
		m.prepareConfirm(confirmShutdown, "Shut down pm2 and everything it runs? The dashboard will go offline.", "")
		return m, nil
	case key.Matches(msg, keys.Add):
		m.mode = modeAdd
		m.form = newAddForm()
		return m, textinput.Blink
	}

	if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] < '1'+byte(tabCount) {
		m.switchTab(dashTab(s[0] - '1'))
		return m, nil
	}

	if m.tab == tabGuide {
		var cmd tea.Cmd
		m.guide, cmd = m.guide.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, keys.Down):
		if m.selected < len(m.selectableIDs())-1 {
			m.selected++
		}
	case key.Matches(msg, keys.Start):
		m.requestSelected(models.VerbStart)
	case key.Matches(msg, keys.Stop):
		m.requestSelected(models.VerbStop)
	case key.Matches(msg, keys.Restart):
		m.requestSelected(models.VerbRestart)
	case key.Matches(msg, keys.Sync):
		m.requestSelected(models.VerbSync)
	case key.Matches(msg, keys.Open):
		return m, m.openSelected()
	case key.Matches(msg, keys.Delete):
		m.prepareDeleteConfirm()
	}
	return m, nil
}

func (m dashModel) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.cmdStatus = "Add cancelled"
		return m, nil
	case "tab", "down":
		m.form.move(1)
		return m, nil
	case "shift+tab", "up":
		m.form.move(-1)
		return m, nil
	case "enter":
		if m.form.focus < fieldCount-1 {
			m.form.move(1)
			return m, nil
		}
		return m.submitForm()
	case "ctrl+s":
		return m.submitForm()
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.update(msg)
	return m, cmd
}

func (m dashModel) submitForm() (tea.Model, tea.Cmd) {
	if m.form.submitting {
		return m, nil
	}
	np, err := m.form.project()
	if err != nil {
		m.form.err = err.Error()
		return m, nil
	}
	m.form.err = ""
	m.form.submitting = true

	app, ctx := m.app, m.ctx
	return m, func() tea.Msg {
		if np.Tech == "" {
			// Roots cached earlier in the session may predate new marker files.
			app.resolver.ClearCache()
			script := ""
			if np.StartScript != nil {
				script = *np.StartScript
			}
			np.Tech = detect.Tech(app.resolver, np.Path, script)
		}
		res, err := app.pm.AddProject(ctx, np)
		return addResultMsg{name: np.Name, result: res, err: err}
	}
}

func (m dashModel) handleAddResult(msg addResultMsg) (tea.Model, tea.Cmd) {
	m.form.submitting = false
	if msg.err != nil {
		m.form.err = msg.err.Error()
		return m, nil
	}
	if !msg.result.Success {
		m.form.err = msg.result.Message
		if m.form.err == "" {
			m.form.err = "pmctl rejected the project"
		}
		return m, nil
	}
	m.mode = modeBrowse
	m.cmdStatus = fmt.Sprintf("Added %q", msg.name)
	return m, m.refreshCmd()
}

func (m *dashModel) switchTab(t dashTab) {
	m.tab = t
	m.selected = 0
}

// selectableIDs lists project ids in the order the current tab renders them
func (m dashModel) selectableIDs() []string {
	var ids []string
	switch m.tab {
	case tabProjects:
		groups := view.Partition(m.app.store.All())
		for _, bucket := range [][]models.Project{groups.Agents, groups.Infra, groups.Uncategorized} {
			for _, p := range bucket {
				ids = append(ids, p.ID)
			}
		}
	case tabGit:
		for _, p := range m.app.store.All() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (m dashModel) selectedID() string {
	ids := m.selectableIDs()
	if m.selected < 0 || m.selected >= len(ids) {
		return ""
	}
	return ids[m.selected]
}

func (m *dashModel) clampSelection() {
	n := len(m.selectableIDs())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// requestSelected hands a verb for the selected project to the reconciler.
// Disabled controls never reach it.
func (m *dashModel) requestSelected(verb models.Verb) {
	if m.tab == tabGit && verb != models.VerbSync {
		return
	}
	id := m.selectedID()
	if id == "" {
		m.cmdStatus = "No project selected"
		return
	}
	p, ok := m.app.store.Get(id)
	if !ok {
		m.cmdStatus = fmt.Sprintf("%q is gone", id)
		return
	}
	busy := view.BusyFrom(m.rec.BusyMap(), id)
	card := view.CardFor(p, busy, m.app.cfg.Host)
	if !card.Controls.Enabled(verb) {
		if busy.Active {
			m.cmdStatus = fmt.Sprintf("%s is busy (%s)", card.Name, busy.Verb)
		} else {
			m.cmdStatus = fmt.Sprintf("%s is not available for %s", verb, card.Name)
		}
		return
	}
	if err := m.rec.Request(id, verb); err != nil {
		m.cmdStatus = err.Error()
		return
	}
	if verb == models.VerbSync {
		delete(m.syncResults, id)
	}
	m.cmdStatus = fmt.Sprintf("%s %s...", verbLabel(verb), card.Name)
}

func (m dashModel) openSelected() tea.Cmd {
	if m.tab != tabProjects {
		return nil
	}
	id := m.selectedID()
	p, ok := m.app.store.Get(id)
	if !ok {
		return nil
	}
	card := view.CardFor(p, view.BusyFrom(m.rec.BusyMap(), id), m.app.cfg.Host)
	if card.URL == "" {
		return func() tea.Msg {
			return opDoneMsg{status: fmt.Sprintf("%s has no open port to show", card.Name)}
		}
	}
	open := m.app.openBrowser
	return func() tea.Msg {
		if err := open(card.URL); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: "Opened " + card.URL}
	}
}

func (m *dashModel) prepareDeleteConfirm() {
	if m.tab != tabProjects {
		return
	}
	id := m.selectedID()
	if id == "" {
		m.cmdStatus = "No project selected"
		return
	}
	name := id
	if p, ok := m.app.store.Get(id); ok && p.Name != "" {
		name = p.Name
	}
	m.prepareConfirm(confirmDelete, fmt.Sprintf("Delete %q from pmctl?", name), id)
}

func (m *dashModel) prepareConfirm(kind confirmKind, prompt, id string) {
	m.confirm = &confirmState{kind: kind, prompt: prompt, id: id}
	m.mode = modeConfirm
}

func (m *dashModel) executeConfirm(yes bool) tea.Cmd {
	if m.confirm == nil {
		m.mode = modeBrowse
		return nil
	}
	c := *m.confirm
	m.confirm = nil
	m.mode = modeBrowse
	if !yes {
		m.cmdStatus = "Cancelled"
		return nil
	}

	app, ctx := m.app, m.ctx
	switch c.kind {
	case confirmDelete:
		m.cmdStatus = fmt.Sprintf("Deleting %q...", c.id)
		return func() tea.Msg {
			if err := app.pm.DeleteProject(ctx, c.id); err != nil {
				return opDoneMsg{err: fmt.Errorf("failed to delete %q: %w", c.id, err), refresh: true}
			}
			return opDoneMsg{status: fmt.Sprintf("Deleted %q", c.id), refresh: true}
		}
	case confirmStartAll, confirmStopAll:
		op := process.BulkStartAll
		if c.kind == confirmStopAll {
			op = process.BulkStopAll
		}
		m.cmdStatus = fmt.Sprintf("Requesting %s...", op)
		delay := app.cfg.Reconcile.BulkRefreshDelay
		return func() tea.Msg {
			if err := app.pm.Bulk(ctx, op); err != nil {
				return opDoneMsg{err: fmt.Errorf("failed to %s: %w", op, err)}
			}
			log.Info("bulk command issued", "op", op)
			return opDoneMsg{status: fmt.Sprintf("Requested %s", op), refreshAfter: delay}
		}
	case confirmShutdown:
		m.cmdStatus = "Shutting down pm2..."
		return func() tea.Msg {
			if err := app.pm.Bulk(ctx, process.BulkShutdown); err != nil {
				return opDoneMsg{err: fmt.Errorf("failed to shut down: %w", err)}
			}
			log.Info("bulk command issued", "op", process.BulkShutdown)
			return opDoneMsg{status: "Shutdown requested"}
		}
	}
	return nil
}

func (m dashModel) handleOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.cmdStatus = msg.err.Error()
	} else {
		m.cmdStatus = msg.status
	}
	switch {
	case msg.refresh:
		return m, m.refreshCmd()
	case msg.refreshAfter > 0:
		return m, tea.Tick(msg.refreshAfter, func(time.Time) tea.Msg { return reloadMsg{} })
	}
	return m, nil
}

// handleEvent records what the operator should see about a reconciler
// transition. Busy markers themselves are read from the reconciler on render.
func (m *dashModel) handleEvent(ev reconcile.Event) {
	switch ev.Kind {
	case reconcile.EventSyncResult:
		m.syncResults[ev.ID] = syncOutcome{ok: ev.Result.Success, message: ev.Result.Message}
	case reconcile.EventCommandFailed:
		// only sync failures are surfaced; other verbs just release the marker
		if ev.Verb == models.VerbSync {
			m.syncResults[ev.ID] = syncOutcome{message: ev.Err.Error()}
		}
	case reconcile.EventConverged:
		m.cmdStatus = fmt.Sprintf("%s: %s done", ev.ID, ev.Verb)
	case reconcile.EventExhausted:
		if ev.Verb == models.VerbRestart {
			m.cmdStatus = fmt.Sprintf("%s: restart done", ev.ID)
		}
	case reconcile.EventAbsent:
		m.cmdStatus = fmt.Sprintf("%s: removed while %s was running", ev.ID, ev.Verb)
	}
}

func (m dashModel) refreshCmd() tea.Cmd {
	fetcher, ctx := m.app.fetcher, m.ctx
	return func() tea.Msg {
		report := fetcher.Fetch(ctx)
		return refreshedMsg{report: report, at: time.Now()}
	}
}

const reloadingStatus = "Reloading..."

type tickMsg time.Time
type reloadMsg struct{}
type refreshedMsg struct {
	report fetch.Report
	at     time.Time
}
type eventMsg struct {
	ev reconcile.Event
}
type opDoneMsg struct {
	status       string
	err          error
	refresh      bool
	refreshAfter time.Duration
}
type addResultMsg struct {
	name   string
	result models.ActionResult
	err    error
}

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func verbLabel(v models.Verb) string {
	switch v {
	case models.VerbStart:
		return "Starting"
	case models.VerbStop:
		return "Stopping"
	case models.VerbRestart:
		return "Restarting"
	case models.VerbSync:
		return "Syncing"
	default:
		return string(v)
	}
}

func fixedCell(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		return runewidth.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}

func wrapRunes(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	if s == "" {
		return []string{""}
	}
	var out []string
	rest := s
	for runewidth.StringWidth(rest) > width {
		chunk := runewidth.Truncate(rest, width, "")
		if chunk == "" {
			break
		}
		out = append(out, chunk)
		rest = strings.TrimPrefix(rest, chunk)
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func wrapWords(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	lines := make([]string, 0, 4)
	cur := words[0]
	for _, w := range words[1:] {
		candidate := cur + " " + w
		if runewidth.StringWidth(candidate) <= width {
			cur = candidate
			continue
		}
		lines = append(lines, cur)
		// a single word longer than the line falls back to rune wrapping
		if runewidth.StringWidth(w) > width {
			chunks := wrapRunes(w, width)
			lines = append(lines, chunks[:len(chunks)-1]...)
			cur = chunks[len(chunks)-1]
		} else {
			cur = w
		}
	}
	lines = append(lines, cur)
	return lines
}

func fitLine(line string, width int) string {
	if width <= 0 {
		return line
	}
	lineWidth := runewidth.StringWidth(line)
	if lineWidth >= width {
		// Let the terminal wrap long lines to the viewport instead of truncating.
		return line
	}
	return line + strings.Repeat(" ", width-lineWidth)
}

func pathBase(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "-"
	}
	parts := strings.Split(raw, "/")
	if base := parts[len(parts)-1]; base != "" {
		return base
	}
	return "-"
}
