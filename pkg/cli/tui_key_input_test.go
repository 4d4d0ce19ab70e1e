package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devports/kdcdash/pkg/fakepm"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/reconcile"
)

type dashHarness struct {
	app   *App
	stack *fakepm.Stack
	sched *reconcile.ManualScheduler
	rec   *reconcile.Reconciler
}

func newDashHarness(t *testing.T) (*dashHarness, dashModel) {
	t.Helper()
	app, st, _, _ := newTestApp(t, 0)
	seedFleet(st)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sched := reconcile.NewManualScheduler(time.Unix(0, 0))
	rec := app.newReconciler(ctx, sched)
	require.NoError(t, app.fetcher.Refresh(ctx))

	m := newDashModel(ctx, app, rec)
	m.width = 140
	return &dashHarness{app: app, stack: st, sched: sched, rec: rec}, m
}

func press(t *testing.T, m dashModel, keys ...string) (dashModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "ctrl+s":
			msg = tea.KeyMsg{Type: tea.KeyCtrlS}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		updated, ok := next.(dashModel)
		if !ok {
			t.Fatalf("expected dashModel, got %T", next)
		}
		m, cmd = updated, c
	}
	return m, cmd
}

func deliver(t *testing.T, m dashModel, msg tea.Msg) (dashModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	updated, ok := next.(dashModel)
	if !ok {
		t.Fatalf("expected dashModel, got %T", next)
	}
	return updated, cmd
}

func TestProjectsTabGroupsByCategory(t *testing.T) {
	t.Parallel()

	_, m := newDashHarness(t)
	out := m.View()
	assert.Contains(t, out, "AGENTS (1)")
	assert.Contains(t, out, "INFRASTRUCTURE (1)")
	assert.NotContains(t, out, "UNCATEGORIZED")
	assert.Contains(t, out, "Mail Agent")
	assert.Contains(t, out, "all systems up")
	assert.Equal(t, []string{"mail-agent", "poller"}, m.selectableIDs())
}

func TestStopMarksBusyAndDisablesControls(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "x")

	verb, busy := h.rec.Busy("mail-agent")
	require.True(t, busy)
	assert.Equal(t, models.VerbStop, verb)
	assert.Contains(t, m.View(), "STOPPING")
	pending := h.sched.Pending()

	// every control is disabled while busy, so nothing else is requested
	m, _ = press(t, m, "x", "r")
	assert.Contains(t, m.cmdStatus, "busy")
	assert.Equal(t, pending, h.sched.Pending())
	assert.Empty(t, h.stack.Calls())
}

func TestStartDisabledWhileOnline(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "s")
	assert.Contains(t, m.cmdStatus, "not available")
	_, busy := h.rec.Busy("mail-agent")
	assert.False(t, busy)

	// poller is stopped, so stop is disabled and start is allowed
	m, _ = press(t, m, "down", "x")
	assert.Contains(t, m.cmdStatus, "not available")
	m, _ = press(t, m, "s")
	_, busy = h.rec.Busy("poller")
	assert.True(t, busy)
}

func TestBusyClearsAfterConvergence(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "x")
	h.sched.Flush()

	_, busy := h.rec.Busy("mail-agent")
	assert.False(t, busy)
	assert.Contains(t, h.stack.Calls(), "POST /api/projects/mail-agent/stop")
	assert.NotContains(t, m.View(), "STOPPING")
	assert.Contains(t, m.View(), "OFFLINE")
}

func TestSyncResultIndicator(t *testing.T) {
	t.Parallel()

	_, m := newDashHarness(t)
	m, _ = press(t, m, "2")
	require.Equal(t, tabGit, m.tab)

	m, _ = deliver(t, m, eventMsg{ev: reconcile.Event{
		Kind:   reconcile.EventSyncResult,
		ID:     "mail-agent",
		Verb:   models.VerbSync,
		Result: models.ActionResult{Success: false, Message: "rejected: non-fast-forward"},
	}})
	assert.Contains(t, m.View(), "✗ rejected: non-fast-forward")

	m, _ = deliver(t, m, eventMsg{ev: reconcile.Event{
		Kind: reconcile.EventCommandFailed,
		ID:   "mail-agent",
		Verb: models.VerbSync,
		Err:  errors.New("connection refused"),
	}})
	assert.Contains(t, m.View(), "✗ connection refused")
}

func TestCommandFailureIsNotSurfacedForLifecycleVerbs(t *testing.T) {
	t.Parallel()

	_, m := newDashHarness(t)
	m.cmdStatus = ""
	m, _ = deliver(t, m, eventMsg{ev: reconcile.Event{
		Kind: reconcile.EventCommandFailed,
		ID:   "poller",
		Verb: models.VerbStart,
		Err:  errors.New("boom"),
	}})
	assert.Empty(t, m.cmdStatus)
	assert.Empty(t, m.syncResults)
}

func TestGitTabOnlySyncs(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "2", "x")
	_, busy := h.rec.Busy("mail-agent")
	assert.False(t, busy)

	_, _ = press(t, m, "g")
	verb, busy := h.rec.Busy("mail-agent")
	require.True(t, busy)
	assert.Equal(t, models.VerbSync, verb)
}

func TestDeleteConfirmFlow(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "down", "d")
	require.Equal(t, modeConfirm, m.mode)
	assert.Contains(t, m.View(), `Delete "Poller" from pmctl? [y/N]`)

	m, cmd := press(t, m, "n")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Nil(t, cmd)
	assert.Equal(t, "Cancelled", m.cmdStatus)

	m, cmd = press(t, m, "d", "y")
	require.NotNil(t, cmd)
	done, ok := cmd().(opDoneMsg)
	require.True(t, ok)
	assert.True(t, done.refresh)
	assert.Contains(t, h.stack.Calls(), "DELETE /api/projects/poller")

	m, cmd = deliver(t, m, done)
	assert.Equal(t, `Deleted "poller"`, m.cmdStatus)
	require.NotNil(t, cmd)
	m, _ = deliver(t, m, cmd())
	assert.Equal(t, []string{"mail-agent"}, m.selectableIDs())
	assert.Equal(t, 0, m.selected)
}

func TestBulkConfirmSchedulesDelayedRefresh(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, cmd := press(t, m, "X", "y")
	require.NotNil(t, cmd)
	done, ok := cmd().(opDoneMsg)
	require.True(t, ok)
	assert.Equal(t, h.app.cfg.Reconcile.BulkRefreshDelay, done.refreshAfter)
	assert.Contains(t, h.stack.Calls(), "POST /api/pm2/stop-all")

	_, cmd = deliver(t, m, done)
	assert.NotNil(t, cmd)
}

func TestShutdownHasNoFollowUpRefresh(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, cmd := press(t, m, "Q", "enter")
	require.NotNil(t, cmd)
	done := cmd().(opDoneMsg)
	assert.False(t, done.refresh)
	assert.Zero(t, done.refreshAfter)
	assert.Contains(t, h.stack.Calls(), "POST /api/pm2/shutdown")

	m, cmd = deliver(t, m, done)
	assert.Nil(t, cmd)
	assert.Equal(t, "Shutdown requested", m.cmdStatus)
}

func TestAddFormKeepsOpenOnRejection(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "a")
	require.Equal(t, modeAdd, m.mode)

	// "q" and "s" are typed into the form, not treated as shortcuts
	m, _ = press(t, m, "p", "o", "l", "l", "e", "r")
	m, _ = press(t, m, "tab", "/", "s", "r", "v")
	assert.Equal(t, "poller", m.form.value(fieldName))
	assert.Equal(t, "/srv", m.form.value(fieldPath))

	m, cmd := press(t, m, "ctrl+s")
	require.NotNil(t, cmd)
	assert.True(t, m.form.submitting)
	m, _ = deliver(t, m, cmd())
	assert.Equal(t, modeAdd, m.mode)
	assert.Contains(t, m.form.err, "already exists")
	assert.Contains(t, m.View(), "already exists")
	assert.Contains(t, h.stack.Calls(), "POST /api/projects")
}

func TestAddFormSubmitsNewProject(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "a")
	m, _ = press(t, m, "w", "e", "b")
	m, _ = press(t, m, "tab", "/", "s", "r", "v")
	for m.form.focus != fieldCategory {
		m, _ = press(t, m, "tab")
	}
	m.form.inputs[fieldCategory].SetValue("infra")

	m, cmd := press(t, m, "ctrl+s")
	require.NotNil(t, cmd)
	m, cmd = deliver(t, m, cmd())
	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, `Added "web"`, m.cmdStatus)
	require.NotNil(t, cmd)

	p, ok := h.stack.Project("web")
	require.True(t, ok)
	assert.Equal(t, models.CategoryInfra, p.Category)
}

func TestAddFormDetectsTechFromFreshMarkers(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	parent := t.TempDir()
	svc := filepath.Join(parent, "svc")
	require.NoError(t, os.MkdirAll(svc, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "package.json"), []byte("{}"), 0644))
	require.Equal(t, parent, h.app.resolver.FindProjectRoot(svc))
	require.NoError(t, os.WriteFile(filepath.Join(svc, "go.mod"), []byte("module example.com/svc\n"), 0644))

	m, _ = press(t, m, "a")
	m.form.inputs[fieldName].SetValue("svc")
	m.form.inputs[fieldPath].SetValue(svc)
	_, cmd := press(t, m, "ctrl+s")
	require.NotNil(t, cmd)
	_, _ = deliver(t, m, cmd())

	p, ok := h.stack.Project("svc")
	require.True(t, ok)
	assert.Equal(t, "Go", p.Tech)
}

func TestAddFormRequiresNameAndPath(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	m, _ = press(t, m, "a", "w")
	m, cmd := press(t, m, "ctrl+s")
	assert.Nil(t, cmd)
	assert.Contains(t, m.form.err, "required")

	m, _ = press(t, m, "esc")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, h.stack.Calls())
}

func TestOpenUsesFirstOpenPort(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	var opened string
	h.app.openBrowser = func(url string) error {
		opened = url
		return nil
	}

	_, cmd := press(t, m, "o")
	require.NotNil(t, cmd)
	done := cmd().(opDoneMsg)
	assert.Equal(t, "http://127.0.0.1:8100", opened)
	assert.Equal(t, "Opened http://127.0.0.1:8100", done.status)
}

func TestTabsAndPortsView(t *testing.T) {
	t.Parallel()

	_, m := newDashHarness(t)
	m, _ = press(t, m, "tab", "tab")
	require.Equal(t, tabPorts, m.tab)
	out := m.View()
	assert.Contains(t, out, "3000!")
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "IDLE")
	assert.Contains(t, out, "share a port")

	m, _ = press(t, m, "4")
	assert.Contains(t, m.View(), "AGENT PROTOCOL")
}

func TestConnectionErrorBanner(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	h.stack.FailProjects(true)
	msg := m.refreshCmd()()
	m, _ = deliver(t, m, msg)

	out := m.View()
	assert.Contains(t, out, "connection error")
	assert.Contains(t, out, "Cannot reach pmctl")
	assert.Contains(t, out, "Mail Agent", "last known projects stay visible")
}

func TestReloadKeyRefetches(t *testing.T) {
	t.Parallel()

	h, m := newDashHarness(t)
	h.stack.SeedProject("scratch", models.Project{Name: "Scratch", Status: models.StatusStopped})
	assert.NotContains(t, m.View(), "Scratch")

	m, cmd := deliver(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	assert.Equal(t, "Reloading...", m.cmdStatus)
	m, _ = deliver(t, m, cmd())
	assert.Contains(t, m.View(), "Scratch")
	assert.Empty(t, m.cmdStatus)
	assert.NotContains(t, m.View(), "Reloading...")
}

func TestRefreshKeepsOtherStatus(t *testing.T) {
	t.Parallel()

	_, m := newDashHarness(t)
	m.cmdStatus = `Added "web"`
	m, _ = deliver(t, m, m.refreshCmd()())
	assert.Equal(t, `Added "web"`, m.cmdStatus)
}

func TestHelpModeSwallowsQuit(t *testing.T) {
	t.Parallel()

	_, m := newDashHarness(t)
	m, _ = press(t, m, "?")
	require.Equal(t, modeHelp, m.mode)
	m, cmd := press(t, m, "q")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Nil(t, cmd)
}

func TestWrapWordsFallsBackToRunes(t *testing.T) {
	t.Parallel()

	lines := wrapWords("short averyveryverylongword end", 8)
	for _, l := range lines {
		if len([]rune(l)) > 8 {
			t.Fatalf("line %q exceeds width", l)
		}
	}
	if strings.Join(lines, "") == "" {
		t.Fatalf("expected content, got nothing")
	}
}
