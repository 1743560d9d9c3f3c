package ui

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/utils"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	notificationQueueSize = 64
	logLines              = 6
)

// Controls is the part of the call machine the screen drives.
type Controls interface {
	Call()
	Accept()
	Decline()
	Hangup()
	ToggleAudio()
	ToggleVideo()
	Snapshot() call.Snapshot
}

type notificationMsg call.Notification

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type logLine struct {
	at   time.Time
	text string
	err  bool
}

// CallModel is the Bubble Tea model for an interactive call session.
type CallModel struct {
	info       RoomInfo
	controls   Controls
	autoAnswer bool

	spinner spinner.Model
	snap    call.Snapshot
	status  string

	incoming    string
	remoteMedia *call.MediaState
	tracks      []call.TrackInfo
	log         []logLine
	lost        bool
	quitting    bool

	width int

	updates chan call.Notification
	done    chan struct{}

	// overflow holds lifecycle notifications that arrived while updates
	// was full. Once non-empty it takes every later one to keep order.
	queueMu  sync.Mutex
	overflow []call.Notification

	// summaries outlive the program; guarded for the caller reading them
	// after Run returns.
	mu        sync.Mutex
	summaries []*call.Summary
}

func NewCallModel(info RoomInfo, autoAnswer bool) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		info:       info,
		autoAnswer: autoAnswer,
		spinner:    s,
		status:     "Waiting for someone to join...",
		updates:    make(chan call.Notification, notificationQueueSize),
		done:       make(chan struct{}),
		width:      80,
	}
}

// SetControls binds the machine the keys act on. It must be called before
// the program starts.
func (m *CallModel) SetControls(c Controls) {
	m.controls = c
}

// Notify queues n for the screen without blocking the caller. It is safe to
// pass as the machine's notification hook. When the screen falls behind,
// status-like notifications are dropped; lifecycle ones never are.
func (m *CallModel) Notify(n call.Notification) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	if len(m.overflow) == 0 {
		select {
		case m.updates <- n:
			return
		default:
		}
	}
	if !lifecycle(n.Kind) {
		slog.Debug("screen behind, dropping notification", "kind", n.Kind, "message", n.Message)
		return
	}
	m.overflow = append(m.overflow, n)
}

// lifecycle reports whether a notification changes what the call is, as
// opposed to how it is going.
func lifecycle(k call.NotificationKind) bool {
	switch k {
	case call.NotifyStatus, call.NotifyStateChanged, call.NotifyRemoteMediaState:
		return false
	}
	return true
}

// nextOverflow pops the oldest held notification.
func (m *CallModel) nextOverflow() (call.Notification, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if len(m.overflow) == 0 {
		return call.Notification{}, false
	}
	n := m.overflow[0]
	m.overflow = m.overflow[1:]
	return n, true
}

// Summaries returns every call that ended while the screen was up.
func (m *CallModel) Summaries() []*call.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*call.Summary(nil), m.summaries...)
}

// Close stops the notification pump.
func (m *CallModel) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdates(),
		tickCmd(),
	)
}

// waitForUpdates returns a command that listens for machine notifications
func (m *CallModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case n := <-m.updates:
			return notificationMsg(n)
		default:
		}
		if n, ok := m.nextOverflow(); ok {
			return notificationMsg(n)
		}
		select {
		case n := <-m.updates:
			return notificationMsg(n)
		case <-m.done:
			return nil
		}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd := m.handleKey(msg.String()); cmd != nil {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		m.refresh()
		cmds = append(cmds, tickCmd())

	case notificationMsg:
		m.handleNotification(call.Notification(msg))
		cmds = append(cmds, m.waitForUpdates())
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) handleKey(key string) tea.Cmd {
	if m.controls == nil {
		if key == "q" || key == "ctrl+c" {
			m.quitting = true
			return tea.Quit
		}
		return nil
	}

	switch key {
	case "q", "ctrl+c":
		m.controls.Hangup()
		m.quitting = true
		return tea.Quit
	case "c":
		m.controls.Call()
	case "a":
		m.controls.Accept()
	case "d":
		m.controls.Decline()
	case "h":
		m.controls.Hangup()
	case "m":
		m.controls.ToggleAudio()
	case "v":
		m.controls.ToggleVideo()
	}
	return nil
}

func (m *CallModel) handleNotification(n call.Notification) {
	m.snap.State = n.State

	switch n.Kind {
	case call.NotifyStatus:
		m.status = n.Message

	case call.NotifyPeerJoined, call.NotifyPeerLeft:
		m.addLog(n.Message, false)

	case call.NotifyIncomingCall:
		m.incoming = n.Peer
		m.addLog(n.Message, false)
		if m.autoAnswer && m.controls != nil {
			m.controls.Accept()
		}

	case call.NotifyCallConnected:
		m.incoming = ""
		m.addLog(n.Message, false)

	case call.NotifyRemoteTrack:
		m.tracks = append(m.tracks, n.Track)
		m.addLog(fmt.Sprintf("Receiving %s (%s)", n.Track.Kind, n.Track.Codec), false)

	case call.NotifyRemoteMediaState:
		ms := n.Media
		m.remoteMedia = &ms

	case call.NotifyCallEnded:
		m.incoming = ""
		m.remoteMedia = nil
		m.tracks = nil
		text := "Call ended"
		if n.Message != "" {
			text += ": " + n.Message
		}
		m.addLog(text, false)
		if n.Summary != nil {
			m.mu.Lock()
			m.summaries = append(m.summaries, n.Summary)
			m.mu.Unlock()
		}

	case call.NotifyError:
		m.addLog(n.Message, true)
		if errors.Is(n.Err, call.ErrChannel) {
			m.lost = true
		}
	}

	if n.State == call.Idle || n.State == call.Connected {
		m.incoming = ""
	}
	m.refresh()
}

func (m *CallModel) refresh() {
	if m.controls != nil {
		m.snap = m.controls.Snapshot()
	}
}

func (m *CallModel) addLog(text string, isErr bool) {
	m.log = append(m.log, logLine{at: time.Now(), text: text, err: isErr})
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Warpcall", IconPhone)))
	b.WriteString("\n")
	b.WriteString(m.info.View())
	b.WriteString("\n\n")

	b.WriteString(m.viewState())
	b.WriteString("\n\n")

	if m.snap.State != call.Idle {
		b.WriteString(SessionTable(m.snap))
		b.WriteString("\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, l := range m.log {
			style := MutedStyle
			if l.err {
				style = ErrorStyle
			}
			b.WriteString(style.Render(fmt.Sprintf("%s  %s", l.at.Format("15:04:05"), l.text)))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.viewFooter())
	return ContainerStyle.Render(b.String())
}

func (m *CallModel) viewState() string {
	if m.lost {
		return ErrorStyle.Render(fmt.Sprintf("%s Signaling connection lost", IconError))
	}

	switch m.snap.State {
	case call.RingingIn:
		peer := m.incoming
		if peer == "" {
			peer = m.snap.RemoteID
		}
		line := fmt.Sprintf("%s %s is calling", RingingStyle.Render("INCOMING"), BoldStyle.Render(utils.ShortID(peer, 24)))
		if m.snap.Acquiring {
			line += "  " + m.spinner.View() + " preparing media"
		}
		return IconRinging + " " + line

	case call.RingingOut:
		return fmt.Sprintf("%s %s Calling %s...", IconPhone, m.spinner.View(), utils.ShortID(m.snap.RemoteID, 24))

	case call.Negotiating:
		label := "Connecting"
		if m.snap.Restarts > 0 {
			label = IconRestart + " Reconnecting"
		}
		return fmt.Sprintf("%s %s to %s...", m.spinner.View(), label, utils.ShortID(m.snap.RemoteID, 24))

	case call.Connected:
		var elapsed string
		if !m.snap.ConnectedAt.IsZero() {
			elapsed = utils.FormatTimeDuration(time.Since(m.snap.ConnectedAt))
		}
		return fmt.Sprintf("%s with %s  %s %s\n%s",
			LiveStyle.Render("LIVE"),
			BoldStyle.Render(utils.ShortID(m.snap.RemoteID, 24)),
			IconTime, elapsed,
			m.viewMedia(),
		)
	}

	if m.snap.Armed {
		return fmt.Sprintf("%s %s Will call as soon as someone joins", IconWaiting, m.spinner.View())
	}
	if m.snap.Dialing {
		return fmt.Sprintf("%s %s Preparing media to call %s", IconPhone, m.spinner.View(), utils.ShortID(m.snap.RemoteID, 24))
	}
	if m.snap.RoomCandidate != "" {
		return fmt.Sprintf("%s %s is here. Press %s to call", IconPeer, BoldStyle.Render(utils.ShortID(m.snap.RoomCandidate, 24)), KeyStyle.Render("c"))
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.status)
}

func (m *CallModel) viewMedia() string {
	mic, cam := IconMic+" mic on", IconCamera+" camera on"
	if !m.snap.Local.Audio {
		mic = WarningStyle.Render(IconMicOff + " mic off")
	}
	if !m.snap.Local.Video {
		cam = WarningStyle.Render(IconCamOff + " camera off")
	}
	line := fmt.Sprintf("You: %s  %s", mic, cam)

	if m.remoteMedia != nil {
		var off []string
		if !m.remoteMedia.Audio {
			off = append(off, "muted")
		}
		if !m.remoteMedia.Video {
			off = append(off, "camera off")
		}
		if len(off) > 0 {
			line += MutedStyle.Render("   Peer: " + strings.Join(off, ", "))
		}
	}
	return line
}

func (m *CallModel) viewFooter() string {
	var keys []string
	key := func(k, label string) {
		keys = append(keys, KeyStyle.Render(k)+" "+label)
	}

	switch m.snap.State {
	case call.Idle:
		if !m.lost {
			key("c", "call")
		}
	case call.RingingIn:
		key("a", "accept")
		key("d", "decline")
	case call.RingingOut, call.Negotiating:
		key("h", "cancel")
	case call.Connected:
		key("m", "mute")
		key("v", "video")
		key("h", "hang up")
	}
	key("q", "quit")

	return FooterStyle.Render(strings.Join(keys, "  •  "))
}
