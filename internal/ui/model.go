// internal/ui/model.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
	"github.com/rovshanmuradov/solana-testlab/internal/ui/component"
	"github.com/rovshanmuradov/solana-testlab/internal/ui/style"
)

const (
	refreshInterval = time.Second
	sparkWidth      = 16
	journalRows     = 200
	chromeHeight    = 6
)

// Engine is the part of the monitor the observer reads and controls.
type Engine interface {
	Campaigns() []campaign.Campaign
	Alerts(campaignID string) ([]alert.Alert, error)
	Journal(limit int, campaignID string) []journal.Record
	StopCampaign(id string) error
	ResetBaseline(id string) (campaign.Campaign, error)
	DeleteCampaign(id string) error
}

// Model is the root bubbletea model: a tab bar over the campaign, alert,
// journal and log views.
type Model struct {
	engine  Engine
	updates *UpdateSender
	keys    KeyMap
	help    help.Model
	palette style.Palette

	tab       Tab
	campaigns table.Model
	alerts    table.Model
	journal   table.Model
	logs      *component.LogViewer
	sparks    map[string]*component.Sparkline

	status    string
	statusErr bool
	lastEvent events.EventType
	seen      uint64
	width     int
	height    int
}

// NewModel builds the observer. updates and logs may be nil.
func NewModel(engine Engine, updates *UpdateSender, logs component.LogSource) *Model {
	m := &Model{
		engine:  engine,
		updates: updates,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		palette: style.DefaultPalette(),
		logs:    component.NewLogViewer(logs),
		sparks:  make(map[string]*component.Sparkline),
	}

	m.campaigns = newTable([]table.Column{
		{Title: "ID", Width: 10},
		{Title: "Label", Width: 12},
		{Title: "Mint", Width: 12},
		{Title: "Status", Width: 8},
		{Title: "Price", Width: 12},
		{Title: "USD", Width: 10},
		{Title: "Change", Width: 9},
		{Title: "Trend", Width: sparkWidth + 2},
		{Title: "Ticks", Width: 7},
	}, true)
	m.alerts = newTable([]table.Column{
		{Title: "Alert", Width: 10},
		{Title: "Campaign", Width: 10},
		{Title: "Rule", Width: 22},
		{Title: "Target", Width: 12},
		{Title: "Actions", Width: 24},
		{Title: "State", Width: 16},
	}, false)
	m.journal = newTable([]table.Column{
		{Title: "Time", Width: 10},
		{Title: "Campaign", Width: 10},
		{Title: "Rule", Width: 22},
		{Title: "Price", Width: 12},
		{Title: "Outcomes", Width: 30},
	}, false)

	m.refresh()
	return m
}

func newTable(cols []table.Column, focused bool) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(focused),
		table.WithHeight(10),
		table.WithWidth(120),
	)
	s := table.DefaultStyles()
	p := style.DefaultPalette()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(p.TextMuted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(p.Background).
		Background(p.Primary).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick()}
	if m.updates != nil {
		cmds = append(cmds, m.updates.Listen())
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EngineEventMsg:
		m.handleEvent(msg.Event)
		if m.updates != nil {
			return m, m.updates.Listen()
		}
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, tick()

	case actionResultMsg:
		m.status, m.statusErr = msg.Text, msg.Err != nil
		if msg.Err != nil {
			m.status = msg.Err.Error()
		}
		m.refresh()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.setTab((m.tab + 1) % tabCount)
		return m, nil
	case key.Matches(msg, m.keys.ShiftTab):
		m.setTab((m.tab + tabCount - 1) % tabCount)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.tab {
	case TabCampaigns:
		if c := m.campaignAction(msg); c != nil {
			return m, c
		}
		m.campaigns, cmd = m.campaigns.Update(msg)
	case TabAlerts:
		m.alerts, cmd = m.alerts.Update(msg)
	case TabJournal:
		m.journal, cmd = m.journal.Update(msg)
	case TabLogs:
		if key.Matches(msg, m.keys.LogLevel) {
			m.logs.CycleLevel()
			m.logs.Refresh()
			return m, nil
		}
		cmd = m.logs.Update(msg)
	}
	return m, cmd
}

// campaignAction maps the management keys to engine calls on the selected
// campaign. The call runs as a command so the engine never blocks a redraw.
func (m *Model) campaignAction(msg tea.KeyMsg) tea.Cmd {
	id := m.SelectedCampaign()
	if id == "" {
		return nil
	}
	engine := m.engine
	switch {
	case key.Matches(msg, m.keys.Stop):
		return func() tea.Msg {
			return actionResultMsg{Text: "Stopped " + id, Err: engine.StopCampaign(id)}
		}
	case key.Matches(msg, m.keys.Reset):
		return func() tea.Msg {
			c, err := engine.ResetBaseline(id)
			return actionResultMsg{Text: fmt.Sprintf("Baseline of %s reset to %s", id, formatPrice(c.BaselinePrice)), Err: err}
		}
	case key.Matches(msg, m.keys.Delete):
		return func() tea.Msg {
			return actionResultMsg{Text: "Deleted " + id, Err: engine.DeleteCampaign(id)}
		}
	}
	return nil
}

func (m *Model) handleEvent(ev events.Event) {
	if ev == nil {
		return
	}
	m.seen++
	m.lastEvent = ev.Type()

	switch e := ev.(type) {
	case events.CampaignUpdatedEvent:
		m.spark(e.CampaignID).Push(e.Stats.CurrentPrice)
	case events.CampaignEvent:
		if e.Type() == events.CampaignDeleted {
			delete(m.sparks, e.Campaign.ID)
		}
	case events.AlertFiredEvent:
		m.status = fmt.Sprintf("🔔 Alert %s fired at %s", shortID(e.AlertID), formatPrice(e.TriggeredPrice))
		m.statusErr = false
	}
	m.refresh()
}

func (m *Model) spark(id string) *component.Sparkline {
	s, ok := m.sparks[id]
	if !ok {
		s = component.NewSparkline(sparkWidth)
		m.sparks[id] = s
	}
	return s
}

func (m *Model) setTab(t Tab) {
	m.tab = t
	m.campaigns.Blur()
	m.alerts.Blur()
	m.journal.Blur()
	switch t {
	case TabCampaigns:
		m.campaigns.Focus()
	case TabAlerts:
		m.alerts.Focus()
	case TabJournal:
		m.journal.Focus()
	case TabLogs:
		m.logs.Refresh()
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width
	body := max(height-chromeHeight, 3)
	for _, t := range []*table.Model{&m.campaigns, &m.alerts, &m.journal} {
		t.SetHeight(body)
		t.SetWidth(width)
	}
	m.logs.SetSize(width, body)
}

// refresh rebuilds every table from the engine.
func (m *Model) refresh() {
	campaigns := m.engine.Campaigns()

	rows := make([]table.Row, 0, len(campaigns))
	var alertRows []table.Row
	for _, c := range campaigns {
		sp := m.spark(c.ID)
		if sp.Len() == 0 {
			sp.Push(c.CurrentPrice)
		}
		rows = append(rows, table.Row{
			c.ID,
			c.Label,
			shortID(c.Instrument.Mint),
			string(c.Status),
			formatPrice(c.CurrentPrice),
			formatUSD(c.CurrentPriceUSD),
			fmt.Sprintf("%+.2f%%", c.ChangePercent),
			sp.Plain() + " " + sp.Trend(),
			fmt.Sprintf("%d", c.Ticks),
		})

		alerts, err := m.engine.Alerts(c.ID)
		if err != nil {
			continue
		}
		for _, a := range alerts {
			alertRows = append(alertRows, alertRow(a))
		}
	}
	m.campaigns.SetRows(rows)
	m.alerts.SetRows(alertRows)

	records := m.engine.Journal(journalRows, "")
	jrows := make([]table.Row, 0, len(records))
	for _, r := range records {
		jrows = append(jrows, table.Row{
			r.Timestamp.Local().Format("15:04:05"),
			r.CampaignID,
			ruleText(r.PriceType, r.Direction, r.TargetValue),
			formatPrice(r.TriggeredAtPrice),
			outcomeText(r),
		})
	}
	m.journal.SetRows(jrows)

	if m.tab == TabLogs {
		m.logs.Refresh()
	}
}

func alertRow(a alert.Alert) table.Row {
	state := "armed"
	if a.Hit {
		state = "fired " + a.HitAt.Local().Format("15:04:05")
	}
	actions := make([]string, 0, len(a.Actions))
	for _, act := range a.Actions {
		actions = append(actions, string(act.Type()))
	}
	target := formatPrice(a.TargetPrice)
	if a.PriceType == alert.PriceTypeExactUSD {
		target = formatUSD(a.TargetPrice)
	}
	return table.Row{
		a.ID,
		a.CampaignID,
		ruleText(a.PriceType, a.Direction, a.TargetValue),
		target,
		strings.Join(actions, ","),
		state,
	}
}

func ruleText(pt alert.PriceType, dir alert.Direction, value float64) string {
	switch pt {
	case alert.PriceTypePercentage:
		return fmt.Sprintf("%s %+g%%", dir, value)
	case alert.PriceTypeExactUSD:
		return fmt.Sprintf("%s $%g", dir, value)
	default:
		return fmt.Sprintf("%s %g", dir, value)
	}
}

func outcomeText(r journal.Record) string {
	parts := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		mark := "✓"
		if !o.Succeeded() {
			mark = "✗"
		}
		parts = append(parts, mark+string(o.ActionType))
	}
	return strings.Join(parts, " ")
}

func formatPrice(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.9g", p)
}

func formatUSD(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.6g", p)
}

func shortID(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}

// SelectedCampaign returns the id under the cursor, or "".
func (m *Model) SelectedCampaign() string {
	row := m.campaigns.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// campaignDetail renders the selected campaign's move with the sparkline in
// color; table cells stay unstyled so their widths line up.
func (m *Model) campaignDetail() string {
	id := m.SelectedCampaign()
	if id == "" {
		return ""
	}
	for _, c := range m.engine.Campaigns() {
		if c.ID != id {
			continue
		}
		change := m.palette.Change(c.ChangePercent).Render(fmt.Sprintf("%+.2f%%", c.ChangePercent))
		return fmt.Sprintf("%s  %s  high %+.2f%%  low %+.2f%%  %s",
			c.ID, change, c.HighestGainPercent, c.LowestDropPercent, m.spark(c.ID).View())
	}
	return ""
}

// ActiveTab returns the tab being shown.
func (m *Model) ActiveTab() Tab { return m.tab }

func (m *Model) View() string {
	p := m.palette
	var b strings.Builder

	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		s := lipgloss.NewStyle().Padding(0, 1).Foreground(p.TextMuted)
		if t == m.tab {
			s = s.Foreground(p.Primary).Bold(true).Underline(true)
		}
		tabs = append(tabs, s.Render(t.String()))
	}
	title := lipgloss.NewStyle().Foreground(p.Secondary).Bold(true).Render("◆ testlab")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", strings.Join(tabs, "")))
	b.WriteString("\n\n")

	switch m.tab {
	case TabCampaigns:
		b.WriteString(m.campaigns.View())
		if detail := m.campaignDetail(); detail != "" {
			b.WriteString("\n")
			b.WriteString(detail)
		}
	case TabAlerts:
		b.WriteString(m.alerts.View())
	case TabJournal:
		b.WriteString(m.journal.View())
	case TabLogs:
		b.WriteString(lipgloss.NewStyle().Foreground(p.TextMuted).Render("level ≥ " + m.logs.Level()))
		b.WriteString("\n")
		b.WriteString(m.logs.View())
	}
	b.WriteString("\n")

	status := fmt.Sprintf("events %d", m.seen)
	if m.lastEvent != "" {
		status += " · last " + string(m.lastEvent)
	}
	if m.updates != nil {
		if _, dropped := m.updates.GetStats(); dropped > 0 {
			status += fmt.Sprintf(" · dropped %d", dropped)
		}
	}
	b.WriteString(lipgloss.NewStyle().Foreground(p.TextMuted).Render(status))
	if m.status != "" {
		color := p.Success
		if m.statusErr {
			color = p.Error
		}
		b.WriteString("  ")
		b.WriteString(lipgloss.NewStyle().Foreground(color).Render(m.status))
	}
	b.WriteString("\n")

	if m.help.ShowAll {
		b.WriteString(m.help.View(m.keys))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ContextualHelp(m.tab)))
	}
	return b.String()
}
