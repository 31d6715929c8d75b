// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Radio state announced by transceive broadcasts
type broadcastState struct {
	timestamp   time.Time
	frequencyHz uint64
	hasFreq     bool
	mode        civ.Mode
	hasMode     bool
}

// monitorModel is the TUI for the monitor command
type monitorModel struct {
	connInfo  string
	showAll   bool
	stats     *busStats
	eventLog  []logEntry
	closed    bool
	width     int
	height    int
	quitting  bool
	lastRadio *broadcastState
}

// Messages
type monitorTickMsg time.Time
type busDataMsg struct {
	responses []civ.Response
	decodeErr error
}
type busClosedMsg struct{}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialMonitorModel(connInfo string, showAll bool) monitorModel {
	return monitorModel{
		connInfo: connInfo,
		showAll:  showAll,
		stats:    newBusStats(time.Now()),
		eventLog: make([]logEntry, 0),
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.calculateRates(time.Time(msg))
		return m, monitorTickCmd()

	case busClosedMsg:
		m.closed = true
		m.addLogEntry("Connection closed", true)

	case busDataMsg:
		for _, r := range msg.responses {
			m.stats.update(r)
			m.trackBroadcast(r)

			switch {
			case r.Kind == civ.KindReject:
				m.addLogEntry("NG from radio", true)
			case m.showAll:
				tag := ""
				if r.Broadcast {
					tag = "TRX "
				}
				m.addLogEntry(tag+civ.FormatResponse(r), false)
			}
		}
		if msg.decodeErr != nil {
			m.stats.decodeError()
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		}
	}

	return m, nil
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

// trackBroadcast records frequency and mode announcements
func (m *monitorModel) trackBroadcast(r civ.Response) {
	if !r.Broadcast {
		return
	}
	if m.lastRadio == nil {
		m.lastRadio = &broadcastState{}
	}
	switch r.Kind {
	case civ.KindFrequency:
		m.lastRadio.frequencyHz = r.Hz
		m.lastRadio.hasFreq = true
	case civ.KindMode:
		m.lastRadio.mode = r.Mode
		m.lastRadio.hasMode = true
	default:
		return
	}
	m.lastRadio.timestamp = time.Now()
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CIVSTAT - BUS MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up %s | Press 'q' to quit",
		m.connInfo, mode, formatUptime(time.Since(m.stats.StartTime)))))
	s.WriteString("\n\n")

	if m.closed {
		s.WriteString(errorStyle.Render("Connection closed"))
		s.WriteString("\n\n")
	} else if m.stats.Frames == 0 {
		s.WriteString(warningStyle.Render("Waiting for traffic..."))
		s.WriteString("\n\n")
	}

	// Statistics
	st := m.stats
	var errorPercent float64
	if total := st.Frames + st.DecodeErrors; total > 0 {
		errorPercent = float64(st.DecodeErrors) * 100.0 / float64(total)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Frames)),
		statsLabelStyle.Render("Broadcasts:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Broadcasts)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.DecodeErrors, errorPercent)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("OK:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Acks)),
		statsLabelStyle.Render("NG:"), warningStyle.Render(fmt.Sprintf("%d", st.Rejects)),
		statsLabelStyle.Render("Unknown:"), headerStyle.Render(fmt.Sprintf("%d", st.Unknown)),
	))

	errRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Last transceive broadcast
	if m.lastRadio != nil && (m.lastRadio.hasFreq || m.lastRadio.hasMode) {
		s.WriteString(statsLabelStyle.Render("Radio (transceive):"))
		s.WriteString("\n")

		radioContent := strings.Builder{}
		if m.lastRadio.hasFreq {
			radioContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Frequency:"), statsValueStyle.Render(civ.FormatFrequency(m.lastRadio.frequencyHz)+" MHz")))
		}
		if m.lastRadio.hasMode {
			radioContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Mode:"), statsValueStyle.Render(m.lastRadio.mode.String())))
		}
		radioContent.WriteString(headerStyle.Render("updated " + m.lastRadio.timestamp.Format("15:04:05")))

		s.WriteString(boxStyle.Render(radioContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	height := m.height - 17
	if height < 5 {
		height = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - height
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
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
