// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/meterstat/internal/stats"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Messages
type tickMsg time.Time
type pollStartMsg struct{}
type snapshotMsg struct {
	snapshot mercury.Snapshot
	err      error
}
type exchangeMsg mercury.ExchangeEvent

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// TUI model
type monitorModel struct {
	connInfo      string
	address       byte
	interval      time.Duration
	showAll       bool
	stats         *stats.Statistics
	counters      stats.Counters
	readings      table.Model
	spinner       spinner.Model
	polling       bool
	last          *mercury.Snapshot
	lastErr       error
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func newMonitorModel(connInfo string, address byte, interval time.Duration, showAll bool, s *stats.Statistics) monitorModel {
	columns := []table.Column{
		{Title: "Quantity", Width: 16},
		{Title: "L1", Width: 10},
		{Title: "L2", Width: 10},
		{Title: "L3", Width: 10},
		{Title: "Total", Width: 10},
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()

	readings := table.New(
		table.WithColumns(columns),
		table.WithRows(snapshotRows(nil)),
		table.WithHeight(8),
		table.WithFocused(false),
		table.WithStyles(styles),
	)

	return monitorModel{
		connInfo:      connInfo,
		address:       address,
		interval:      interval,
		showAll:       showAll,
		stats:         s,
		counters:      s.Snapshot(),
		readings:      readings,
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(warningStyle)),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

// snapshotRows renders the readings table; nil shows placeholders
func snapshotRows(s *mercury.Snapshot) []table.Row {
	if s == nil {
		names := []string{"Voltage (V)", "Current (A)", "Power (W)", "Reactive (var)", "Cos φ", "Angle (°)", "Frequency (Hz)"}
		rows := make([]table.Row, 0, len(names))
		for _, n := range names {
			rows = append(rows, table.Row{n, "-", "-", "-", "-"})
		}
		return rows
	}

	phases := func(name, format string, p mercury.PhaseValues) table.Row {
		return table.Row{name, fmt.Sprintf(format, p.P1), fmt.Sprintf(format, p.P2), fmt.Sprintf(format, p.P3), ""}
	}
	withSum := func(name, format string, p mercury.PhaseSumValues) table.Row {
		return table.Row{name, fmt.Sprintf(format, p.P1), fmt.Sprintf(format, p.P2), fmt.Sprintf(format, p.P3), fmt.Sprintf(format, p.Sum)}
	}

	return []table.Row{
		phases("Voltage (V)", "%.2f", s.Voltage),
		phases("Current (A)", "%.2f", s.Current),
		withSum("Power (W)", "%.2f", s.Power),
		withSum("Reactive (var)", "%.2f", s.ReactivePower),
		withSum("Cos φ", "%.3f", s.CosF),
		phases("Angle (°)", "%.2f", s.Angle),
		{"Frequency (Hz)", "", "", "", fmt.Sprintf("%.2f", s.Frequency.F)},
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.counters = m.stats.Snapshot()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.counters = m.stats.Snapshot()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollStartMsg:
		m.polling = true

	case snapshotMsg:
		m.polling = false
		m.counters = m.stats.Snapshot()
		if msg.err != nil {
			m.lastErr = msg.err
			m.addLogEntry(fmt.Sprintf("SNAPSHOT FAILED (%s): %v", stats.Classify(msg.err), msg.err), true)
			break
		}
		snapshot := msg.snapshot
		m.last = &snapshot
		m.lastErr = nil
		m.readings.SetRows(snapshotRows(m.last))

	case exchangeMsg:
		m.logExchange(mercury.ExchangeEvent(msg))
	}

	return m, nil
}

func (m *monitorModel) logExchange(ev mercury.ExchangeEvent) {
	command := mercury.FormatCommand(ev.Command, ev.Params)
	switch {
	case ev.InitRequired && ev.Retry:
		m.addLogEntry(fmt.Sprintf("%s: channel still closed after setup", command), true)
	case ev.InitRequired:
		m.addLogEntry(fmt.Sprintf("%s: meter requested channel setup", command), false)
	case ev.Err != nil:
		m.addLogEntry(fmt.Sprintf("%s: %v", command, ev.Err), true)
	case m.showAll:
		m.addLogEntry(fmt.Sprintf("%s (ok, %v)", command, ev.Duration.Round(time.Millisecond)), false)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("METERSTAT - MERCURY 236 MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Meter: %d | Interval: %v | 'r' resets stats, 'q' quits",
		m.connInfo, m.address, m.interval)))
	s.WriteString("\n\n")

	// Poll status
	switch {
	case m.polling:
		s.WriteString(m.spinner.View() + warningStyle.Render(" Reading meter..."))
	case m.lastErr != nil:
		s.WriteString(errorStyle.Render("✗ Last snapshot failed"))
	case m.last != nil:
		s.WriteString(statsValueStyle.Render("✓ Updated " + m.last.Timestamp.Format("15:04:05")))
	default:
		s.WriteString(warningStyle.Render("⏳ Waiting for first snapshot..."))
	}
	s.WriteString("\n\n")

	// Readings
	s.WriteString(boxStyle.Render(m.readings.View()))
	s.WriteString("\n")
	if m.last != nil {
		e := m.last.Energy
		s.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Energy A+:"), statsValueStyle.Render(fmt.Sprintf("%.3f kWh", e.Active)),
			statsLabelStyle.Render("R+:"), statsValueStyle.Render(fmt.Sprintf("%.3f kvarh", e.Reactive)),
		))
	}
	s.WriteString("\n")

	// Statistics
	c := m.counters
	var successPercent float64
	if c.TotalExchanges > 0 {
		successPercent = float64(c.Successful) * 100.0 / float64(c.TotalExchanges)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Exchanges:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalExchanges)),
		statsLabelStyle.Render("OK:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.Successful, successPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", c.Errors())),
	))
	if c.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf(" (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			headerStyle.Render("crc"), c.CRCErrors,
			headerStyle.Render("length"), c.LengthErrors,
			headerStyle.Render("address"), c.AddressErrors,
			headerStyle.Render("transport"), c.TransportErrs,
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Reinits:"), warningStyle.Render(fmt.Sprintf("%d", c.Reinits)),
		statsLabelStyle.Render("Avg RTT:"), statsValueStyle.Render(c.AverageRTT().Round(time.Millisecond).String()),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f exch/s", c.ExchangeRate)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 26 // Reserve space for header, readings and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
