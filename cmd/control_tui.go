// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/Thermoquad/civstat/pkg/session"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries = 100
	logHeight     = 8
	// sMeterFull is the S-meter reading at full scale (S9+60)
	sMeterFull = 255
	// actionTimeoutFactor bounds a TUI action relative to one command timeout
	actionTimeoutFactor = 20
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	sm       *sessionManager
	connInfo string

	// Link state
	connected      bool
	connectionLost bool
	retryIn        time.Duration

	// Snapshot of the session, refreshed on every tick and event batch
	viewed   session.Channel
	selected session.Channel
	channels map[session.Channel]session.ChannelState
	sMeter   uint16
	af       uint16
	sql      uint16
	rfPower  uint16
	haveLvl  map[byte]bool
	aux      session.AuxRecord
	stats    session.Counters
	polling  bool

	// Command line
	input   textinput.Model
	running string // name of the action in progress

	eventLog []logEntry
	showHelp bool

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type connectingMsg struct{}

type connectedMsg struct {
	connInfo string
}

type connectFailedMsg struct {
	err     error
	retryIn time.Duration
}

type connectionLostMsg struct{}

type eventBatchMsg struct {
	events []session.Event
}

type actionResultMsg struct {
	name   string
	result string
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(sm *sessionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Prompt = ": "
	ti.Placeholder = "f 145.5"
	ti.CharLimit = 40
	ti.Width = 30

	return controlModel{
		sm:       sm,
		connInfo: connInfo,
		viewed:   cfg.Channel(),
		selected: cfg.Channel(),
		channels: make(map[session.Channel]session.ChannelState),
		haveLvl:  make(map[byte]bool),
		input:    ti,
		eventLog: make([]logEntry, 0),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), textinput.Blink)
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case controlTickMsg:
		m.refresh()
		return m, controlTickCmd()

	case connectingMsg:
		m.addLogEntry("Connecting to "+m.connInfo, false)

	case connectedMsg:
		m.connected = true
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.refresh()
		m.addLogEntry("Connected, both bands read", false)

	case connectFailedMsg:
		m.connected = false
		m.retryIn = msg.retryIn
		m.addLogEntry(fmt.Sprintf("Connect failed: %v (retry in %v)", msg.err, msg.retryIn), true)

	case connectionLostMsg:
		m.connected = false
		m.connectionLost = true
		m.retryIn = minBackoff
		m.addLogEntry("Connection lost - reconnecting...", true)

	case eventBatchMsg:
		for _, e := range msg.events {
			m.processEvent(e)
		}
		m.refresh()

	case actionResultMsg:
		m.running = ""
		switch {
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.name, msg.err), true)
		case msg.result != "":
			m.addLogEntry(fmt.Sprintf("%s: %s", msg.name, msg.result), false)
		default:
			m.addLogEntry(msg.name+": OK", false)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	if m.input.Focused() {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			m.input.Blur()
			return m.execute(line)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.viewed = m.viewed.Other()
		if s := m.sm.session(); s != nil {
			s.View(m.viewed)
		}

	case ":", "/":
		m.showHelp = false
		cmd := m.input.Focus()
		return m, cmd

	case "?":
		m.showHelp = !m.showHelp

	case "a", "b", "w", "r":
		return m.execute(msg.String())
	}

	return m, nil
}

// execute parses line and runs it against the current session in the
// background
func (m controlModel) execute(line string) (tea.Model, tea.Cmd) {
	action, err := parseControlCommand(line)
	if errors.Is(err, errEmptyCommand) {
		return m, nil
	}
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	if action.run == nil {
		m.showHelp = true
		return m, nil
	}

	s := m.sm.session()
	if s == nil {
		m.addLogEntry("Cannot send command: not connected", true)
		return m, nil
	}
	if m.running != "" {
		m.addLogEntry(fmt.Sprintf("Busy with %s", m.running), true)
		return m, nil
	}
	m.running = action.name

	timeout := cfg.CommandTimeout() * actionTimeoutFactor
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := action.run(ctx, s)
		return actionResultMsg{name: action.name, result: result, err: err}
	}
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("CIVSTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	switch {
	case m.connectionLost:
		connStatus = warningStyle.Render("RECONNECTING...")
	case !m.connected:
		connStatus = warningStyle.Render("CONNECTING " + m.connInfo)
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=view :=command ?=help", connStatus)))
	s.WriteString("\n\n")

	// Bands side by side
	panelWidth := (m.width - 6) / 2
	var panels []string
	for _, ch := range session.Channels {
		style := boxStyle.Width(panelWidth)
		if ch == m.viewed {
			style = focusedBoxStyle.Width(panelWidth)
		}
		panels = append(panels, style.Render(m.renderChannel(ch, labelStyle, valueStyle, headerStyle)))
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels[0], " ", panels[1]))
	s.WriteString("\n")

	s.WriteString(m.renderMeters(labelStyle, valueStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	if m.showHelp {
		s.WriteString(boxStyle.Width(m.width - 4).Render(controlHelp))
	} else {
		s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))
	}
	s.WriteString("\n")

	// Command line
	switch {
	case m.input.Focused():
		s.WriteString(m.input.View())
	case m.running != "":
		s.WriteString(warningStyle.Render(m.running + "..."))
	}

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderChannel(ch session.Channel, labelStyle, valueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	title := "BAND " + ch.String()
	if ch == m.selected {
		title += " *"
	}
	s.WriteString(labelStyle.Render(title))
	s.WriteString("\n")

	st, ok := m.channels[ch]
	if !ok || !st.Has(session.FieldFrequency) {
		s.WriteString(headerStyle.Render("(not read yet)"))
		return s.String()
	}

	s.WriteString(valueStyle.Render(civ.FormatFrequency(st.FrequencyHz) + " MHz"))
	if st.Has(session.FieldMode) {
		s.WriteString("  " + valueStyle.Render(st.Mode.String()))
	}
	s.WriteString("\n")

	if st.Has(session.FieldToneMode) {
		s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Tone:"), valueStyle.Render(st.ToneMode.String())))
		fields := st.ToneMode.Fields()
		if fields&session.FieldTxTone != 0 && st.Has(session.FieldTxTone) {
			s.WriteString("  TX " + civ.FormatTone(st.TxToneTenths))
		}
		if fields&session.FieldRxTone != 0 && st.Has(session.FieldRxTone) {
			s.WriteString("  RX " + civ.FormatTone(st.RxToneTenths))
		}
		if fields&session.FieldDTCS != 0 && st.Has(session.FieldDTCS) {
			s.WriteString("  " + st.DTCS.String())
		}
	}

	if ch == m.selected && !m.aux.DuplexTime.IsZero() {
		s.WriteString(fmt.Sprintf("\n%s %s %s",
			labelStyle.Render("Duplex:"),
			valueStyle.Render(civ.FormatDuplex(m.aux.Duplex)),
			civ.FormatFrequency(m.aux.OffsetHz)))
	}

	return s.String()
}

func (m controlModel) renderMeters(labelStyle, valueStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	barWidth := 20
	filled := int(m.sMeter) * barWidth / sMeterFull
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	s.WriteString(fmt.Sprintf("%s %s %3d  ", labelStyle.Render("S:"), valueStyle.Render(bar), m.sMeter))

	level := func(name string, sub byte, v uint16) {
		if m.haveLvl[sub] {
			s.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render(name), valueStyle.Render(fmt.Sprintf("%d", v))))
		}
	}
	level("AF:", civ.LevelAF, m.af)
	level("SQL:", civ.LevelSquelch, m.sql)
	level("PWR:", civ.LevelRFPower, m.rfPower)

	if !m.aux.PositionTime.IsZero() {
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("GPS:"), valueStyle.Render(civ.FormatPosition(m.aux.Position))))
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	st := m.stats

	timeouts := valueStyle.Render("0")
	if st.Timeouts > 0 {
		timeouts = errorStyle.Render(fmt.Sprintf("%d", st.Timeouts))
	}
	polling := "off"
	if m.polling {
		polling = "on"
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Cmds:"), valueStyle.Render(fmt.Sprintf("%d", st.Commands)),
		labelStyle.Render("Resp:"), valueStyle.Render(fmt.Sprintf("%d", st.Responses)),
		labelStyle.Render("Timeouts:"), timeouts,
		labelStyle.Render("TX:"), valueStyle.Render(fmt.Sprintf("%.0f bps", st.TxBitRate)),
		labelStyle.Render("RX:"), valueStyle.Render(fmt.Sprintf("%.0f bps", st.RxBitRate)),
		labelStyle.Render("Poll:"), valueStyle.Render(polling),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

// processEvent logs the session events worth showing. Shadow state is
// read from the session in refresh, not rebuilt from events.
func (m *controlModel) processEvent(e session.Event) {
	switch e.Type {
	case session.EventError:
		m.addLogEntry(e.Err.Error(), true)

	case session.EventState:
		if e.State == session.StateInitializing {
			m.addLogEntry("Reading both bands", false)
		}

	case session.EventResponse:
		if e.Solicited || !e.Response.Broadcast {
			return
		}
		msg := "Radio: " + civ.FormatResponse(e.Response)
		if e.Channel != session.ChannelNone {
			msg = fmt.Sprintf("Radio (%s): %s", e.Channel, civ.FormatResponse(e.Response))
		}
		m.addLogEntry(msg, false)
	}
}

// refresh copies the current session's state into the model
func (m *controlModel) refresh() {
	s := m.sm.session()
	if s == nil {
		m.polling = false
		return
	}

	m.selected = s.Selected()
	m.viewed = s.Viewed()
	for _, ch := range session.Channels {
		m.channels[ch] = s.Channel(ch)
	}
	if v, ok := s.Meter(civ.MeterS); ok {
		m.sMeter = v
	}
	for sub, dst := range map[byte]*uint16{
		civ.LevelAF:      &m.af,
		civ.LevelSquelch: &m.sql,
		civ.LevelRFPower: &m.rfPower,
	} {
		if v, ok := s.Level(sub); ok {
			*dst = v
			m.haveLvl[sub] = true
		}
	}
	m.aux = s.Aux()
	m.stats = s.Stats()
	m.polling = s.Polling()
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}
