package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/view"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	activeTab    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Bold(true).Padding(0, 1)
	inactiveTab  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

const guideText = `AGENT PROTOCOL

  1. Port check   GET :4444/ports and pick a free port.
  2. Port claim   Register it with POST :4444/ports/request.
  3. PM2 setup    Add the service to pm2 so it survives restarts.
  4. Git push     Commit and push through the Git sync tab.

EMERGENCY (terminal)

  If the dashboard stops responding, or a process such as the port
  registry pins a CPU, use these from a shell:

  Stop everything (pm2):
    pm2 stop all && pm2 kill

  Force-stop the port registry:
    pkill -9 -f "port-registry"

  Force-stop every Python and Node process:
    pkill -9 -f "python" && pkill -9 -f "node"

  Bring things back with ~/start-assistant.sh (if configured)
  or per project with: pmctl web
`

func (m dashModel) View() string {
	width := m.width
	if width <= 0 {
		width = 120
	}

	var b strings.Builder
	// Ensure stale lines are removed when viewport shrinks/resizes.
	b.WriteString("\x1b[H\x1b[2J")
	b.WriteString(m.renderHeader(width))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	switch {
	case m.mode == modeHelp:
		b.WriteString(m.help.FullHelpView(keys.FullHelp()))
		b.WriteString("\n")
	case m.mode == modeAdd:
		b.WriteString(m.renderForm(width))
	default:
		switch m.tab {
		case tabProjects:
			b.WriteString(m.renderProjects(width))
		case tabGit:
			b.WriteString(m.renderGit(width))
		case tabPorts:
			b.WriteString(m.renderPorts(width))
		case tabGuide:
			b.WriteString(m.guide.View())
			b.WriteString("\n")
		}
	}

	if m.mode == modeConfirm && m.confirm != nil {
		b.WriteString("\n")
		b.WriteString(warnStyle.Bold(true).Render(fitLine(m.confirm.prompt+" [y/N]", width)))
		b.WriteString("\n")
	}
	if m.cmdStatus != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fitLine(m.cmdStatus, width)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.mode != modeHelp {
		b.WriteString(m.help.ShortHelpView(keys.ShortHelp()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashModel) renderHeader(width int) string {
	st := m.app.store
	state := view.Health(st.Loaded(), st.Err())
	indicator := view.HealthLabel(state)
	switch state {
	case view.HealthOK:
		indicator = okStyle.Render("● " + indicator)
	case view.HealthConnecting:
		indicator = warnStyle.Render("● " + indicator)
	default:
		indicator = errStyle.Render("● " + indicator)
	}

	parts := []string{headerStyle.Render("KDC Dashboard"), indicator}
	if line := view.SystemLine(st.Stats()); line != "" {
		parts = append(parts, dimStyle.Render(line))
	}
	parts = append(parts, dimStyle.Render(view.UpdatedLabel(st.UpdatedAt(), time.Now())))

	var b strings.Builder
	b.WriteString(strings.Join(parts, "   "))
	b.WriteString("\n")
	if err := st.Err(); err != nil {
		for _, line := range wrapWords("Cannot reach pmctl: "+err.Error()+" (showing last known state)", width) {
			b.WriteString(errStyle.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m dashModel) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := dashTab(0); t < tabCount; t++ {
		label := fmt.Sprintf("%d %s", t+1, tabNames[t])
		if t == m.tab {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, inactiveTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m dashModel) renderProjects(width int) string {
	projects := m.app.store.All()
	if len(projects) == 0 {
		if !m.app.store.Loaded() {
			return dimStyle.Render("Loading projects...") + "\n"
		}
		return dimStyle.Render("No projects tracked. Press a to add one.") + "\n"
	}

	busyMap := m.rec.BusyMap()
	groups := view.Partition(projects)
	sections := []struct {
		title    string
		projects []models.Project
	}{
		{"AGENTS", groups.Agents},
		{"INFRASTRUCTURE", groups.Infra},
		{"UNCATEGORIZED", groups.Uncategorized},
	}

	var b strings.Builder
	idx := 0
	for _, sec := range sections {
		if len(sec.projects) == 0 && sec.title == "UNCATEGORIZED" {
			continue
		}
		b.WriteString(sectionStyle.Render(fmt.Sprintf("%s (%d)", sec.title, len(sec.projects))))
		b.WriteString("\n")
		if len(sec.projects) == 0 {
			b.WriteString(dimStyle.Render("  none"))
			b.WriteString("\n")
		}
		for _, p := range sec.projects {
			card := view.CardFor(p, view.BusyFrom(busyMap, p.ID), m.app.cfg.Host)
			b.WriteString(m.renderCard(card, idx == m.selected, width))
			idx++
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashModel) renderCard(c view.Card, selected bool, width int) string {
	cursor := "  "
	if selected {
		cursor = headerStyle.Render("▸ ")
	}

	var badge string
	switch c.State {
	case view.StateOnline:
		badge = okStyle.Render(fixedCell(string(c.State), 8))
	case view.StateStopping:
		badge = warnStyle.Render(fixedCell(string(c.State), 8))
	default:
		badge = dimStyle.Render(fixedCell(string(c.State), 8))
	}

	ports := make([]string, 0, len(c.Ports))
	for _, tag := range c.Ports {
		if tag.Open {
			ports = append(ports, okStyle.Render(tag.String()))
		} else {
			ports = append(ports, dimStyle.Render(tag.String()))
		}
	}
	if c.Background != "" {
		ports = append(ports, dimStyle.Render(c.Background))
	}

	line := cursor + fixedCell(c.Name, 22) + " " + badge + " " + strings.Join(ports, " ")
	if c.Busy.Active {
		line += "  " + warnStyle.Render(m.spinner.View()+" "+verbLabel(c.Busy.Verb))
	}

	details := fmt.Sprintf("%s | CPU %s | MEM %s | %s | %s | %s",
		c.Description, c.CPU, c.Memory, dashIfEmpty(c.Disk), dashIfEmpty(c.Tech), pathBase(c.Path))
	if c.URL != "" {
		details += " | " + c.URL
	}

	var b strings.Builder
	b.WriteString(line)
	b.WriteString("\n")
	for _, l := range wrapWords(details, max(width-4, 20)) {
		b.WriteString("    ")
		b.WriteString(dimStyle.Render(l))
		b.WriteString("\n")
	}
	if selected {
		b.WriteString("    ")
		b.WriteString(renderControls(c.Controls))
		b.WriteString("\n")
	}
	return b.String()
}

func renderControls(c view.Controls) string {
	controls := []struct {
		label string
		on    bool
	}{
		{"[s]tart", c.Start},
		{"[x] stop", c.Stop},
		{"[r]estart", c.Restart},
		{"[g] sync", c.Sync},
	}
	parts := make([]string, 0, len(controls))
	for _, ctl := range controls {
		if ctl.on {
			parts = append(parts, headerStyle.Render(ctl.label))
		} else {
			parts = append(parts, dimStyle.Strikethrough(true).Render(ctl.label))
		}
	}
	return strings.Join(parts, "  ")
}

func (m dashModel) renderGit(width int) string {
	rows := view.GitRows(m.app.store.All(), m.rec.BusyMap())
	if len(rows) == 0 {
		return dimStyle.Render("No projects tracked.") + "\n"
	}
	nameW, badgeW, branchW, remoteW := 22, 8, 16, 28
	resultW := width - nameW - badgeW - branchW - remoteW - 10
	if resultW < 12 {
		resultW = 12
	}

	var b strings.Builder
	header := fmt.Sprintf("  %s %s %s %s %s",
		fixedCell("Project", nameW), fixedCell("Repo", badgeW), fixedCell("Branch", branchW),
		fixedCell("Remote", remoteW), fixedCell("Changes / last sync", resultW))
	b.WriteString(headerStyle.Render(fitLine(header, width)))
	b.WriteString("\n")

	for i, r := range rows {
		cursor := "  "
		if i == m.selected {
			cursor = headerStyle.Render("▸ ")
		}
		badge := fixedCell(r.Badge(), badgeW)
		switch r.Badge() {
		case "DIRTY":
			badge = warnStyle.Render(badge)
		case "CLEAN":
			badge = okStyle.Render(badge)
		default:
			badge = dimStyle.Render(badge)
		}

		detail := r.Summary
		if r.Error != "" {
			detail = r.Error
		}
		switch res, ok := m.syncResults[r.ID]; {
		case r.Syncing:
			detail = m.spinner.View() + " syncing"
		case ok && res.ok:
			detail = okStyle.Render("✓ " + dashIfEmpty(res.message))
		case ok:
			detail = errStyle.Render("✗ " + dashIfEmpty(res.message))
		}

		b.WriteString(fmt.Sprintf("%s%s %s %s %s %s\n",
			cursor, fixedCell(r.Name, nameW), badge, fixedCell(r.Branch, branchW),
			fixedCell(r.Remote, remoteW), detail))
	}
	return b.String()
}

func (m dashModel) renderPorts(width int) string {
	rows := view.PortRows(m.app.store.Ports())
	if len(rows) == 0 {
		return dimStyle.Render("Port registry is empty.") + "\n"
	}
	portW, serviceW, projectW, statusW := 7, 22, 18, 7
	descW := width - portW - serviceW - projectW - statusW - 6
	if descW < 12 {
		descW = 12
	}

	var b strings.Builder
	header := fmt.Sprintf("%s %s %s %s %s",
		fixedCell("Port", portW), fixedCell("Service", serviceW), fixedCell("Project", projectW),
		fixedCell("Status", statusW), fixedCell("Description", descW))
	b.WriteString(headerStyle.Render(fitLine(header, width)))
	b.WriteString("\n")

	conflicts := 0
	for _, r := range rows {
		port := fixedCell(fmt.Sprintf("%d", r.Port), portW)
		if r.Conflict {
			conflicts++
			port = warnStyle.Render(fixedCell(fmt.Sprintf("%d!", r.Port), portW))
		}
		status := fixedCell(r.StatusLabel(), statusW)
		if r.Active {
			status = okStyle.Render(status)
		} else {
			status = dimStyle.Render(status)
		}
		b.WriteString(fmt.Sprintf("%s %s %s %s %s\n",
			port, fixedCell(r.Service, serviceW), fixedCell(dashIfEmpty(r.Project), projectW),
			status, fixedCell(r.Description, descW)))
	}
	if conflicts > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d services share a port (marked !)", conflicts)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashModel) renderForm(width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Add project"))
	b.WriteString("\n\n")
	for i := range m.form.inputs {
		label := fixedCell(fieldLabels[i], 14)
		if i == m.form.focus {
			label = okStyle.Render(label)
		} else {
			label = dimStyle.Render(label)
		}
		b.WriteString(label)
		b.WriteString(" ")
		b.WriteString(m.form.inputs[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.form.submitting:
		b.WriteString(dimStyle.Render(m.spinner.View() + " adding..."))
		b.WriteString("\n")
	case m.form.err != "":
		for _, line := range wrapWords(m.form.err, width) {
			b.WriteString(errStyle.Render(line))
			b.WriteString("\n")
		}
	}
	hint := "tab/shift+tab move | enter next | ctrl+s add | esc cancel"
	if !m.form.ready() {
		hint = "name and path are required | " + hint
	}
	b.WriteString(dimStyle.Render(fitLine(hint, width)))
	b.WriteString("\n")
	return b.String()
}
