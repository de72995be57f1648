// Package console is the judge's terminal UI. It shows the judge's entries
// with their scoring status, edits values category by category and
// surfaces writes waiting in the offline queue.
//
// It uses bubbletea: Update turns key presses and background events into
// state changes and View renders that state.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/client/api"
	"github.com/Black-And-White-Club/judgeboard/client/offlinequeue"
	"github.com/Black-And-White-Club/judgeboard/client/savecoord"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultFlushTimeout  = 5 * time.Second
	eventBuffer          = 64
)

// Server is the part of the API the console reads directly.
type Server interface {
	ListEntries(ctx context.Context, eventID, judgeID string) (*api.Listing, error)
	Ping(ctx context.Context) error
}

// Deps wires the console to its collaborators.
type Deps struct {
	Server      Server
	Saver       *savecoord.Saver
	Coordinator *savecoord.Coordinator
	Queue       *offlinequeue.Queue
	Logger      *slog.Logger

	EventID  string
	JudgeID  string
	MaxScore int

	ProbeInterval time.Duration
	FlushTimeout  time.Duration
}

type paneFocus int

const (
	focusEntries paneFocus = iota
	focusQueue
)

type row struct {
	entry  api.EntryRow
	values scoredomain.Values
}

func (r row) status(categories []scoredomain.Category) scoredomain.Status {
	return scoredomain.DeriveStatus(r.entry.OrganizationName(), categories, r.values)
}

type listingMsg struct {
	listing *api.Listing
	err     error
}

type saveEventMsg struct{ event savecoord.Event }

type queueEventMsg struct{ event offlinequeue.Event }

type probeTickMsg struct{}

type probeResultMsg struct{ err error }

type shutdownDoneMsg struct{ err error }

// App is the bubbletea model.
type App struct {
	deps   Deps
	logger *slog.Logger

	categories []scoredomain.Category
	rows       []row
	selected   int
	category   int

	keys keyMap
	help help.Model

	focus      paneFocus
	queueItems []offlinequeue.Mutation
	queueSel   int

	online     bool
	loading    bool
	statusMsg  string
	err        error
	quitting   bool
	width      int
	height     int
	events     chan tea.Msg
	unsubs     []func()
	background context.Context
}

// New builds the console model and subscribes it to save and queue events.
func New(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.ProbeInterval <= 0 {
		deps.ProbeInterval = defaultProbeInterval
	}
	if deps.FlushTimeout <= 0 {
		deps.FlushTimeout = defaultFlushTimeout
	}
	a := &App{
		deps:       deps,
		logger:     deps.Logger,
		keys:       newKeyMap(),
		help:       help.New(),
		online:     true,
		loading:    true,
		statusMsg:  "Loading entries...",
		events:     make(chan tea.Msg, eventBuffer),
		background: context.Background(),
	}
	if deps.Coordinator != nil {
		a.unsubs = append(a.unsubs, deps.Coordinator.Subscribe(func(ev savecoord.Event) {
			a.post(saveEventMsg{event: ev})
		}))
	}
	if deps.Queue != nil {
		a.unsubs = append(a.unsubs, deps.Queue.Subscribe(func(ev offlinequeue.Event) {
			a.post(queueEventMsg{event: ev})
		}))
		a.queueItems = deps.Queue.Snapshot()
	}
	return a
}

// Close detaches the console from its event sources.
func (a *App) Close() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
}

func (a *App) post(msg tea.Msg) {
	select {
	case a.events <- msg:
	default:
		a.logger.Warn("Console event buffer full, dropping event")
	}
}

// Init loads the listing and starts the background loops.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.fetchListing(), a.waitForEvent(), a.scheduleProbe())
}

func (a *App) fetchListing() tea.Cmd {
	server, eventID, judgeID := a.deps.Server, a.deps.EventID, a.deps.JudgeID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.background, 10*time.Second)
		defer cancel()
		listing, err := server.ListEntries(ctx, eventID, judgeID)
		return listingMsg{listing: listing, err: err}
	}
}

func (a *App) waitForEvent() tea.Cmd {
	events := a.events
	return func() tea.Msg { return <-events }
}

func (a *App) scheduleProbe() tea.Cmd {
	return tea.Tick(a.deps.ProbeInterval, func(time.Time) tea.Msg { return probeTickMsg{} })
}

func (a *App) probe() tea.Cmd {
	server := a.deps.Server
	return func() tea.Msg {
		return probeResultMsg{err: server.Ping(a.background)}
	}
}

// shutdown fires every debounced save and waits for outstanding ones,
// bounded by FlushTimeout.
func (a *App) shutdown() tea.Cmd {
	saver, coord, timeout := a.deps.Saver, a.deps.Coordinator, a.deps.FlushTimeout
	return func() tea.Msg {
		if saver != nil {
			saver.Flush()
		}
		if coord == nil {
			return shutdownDoneMsg{}
		}
		return shutdownDoneMsg{err: coord.WaitForAllSaves(timeout)}
	}
}

// Update handles one message.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil

	case listingMsg:
		a.loading = false
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = "Could not load entries: " + msg.err.Error()
			a.logger.Error("Failed to load listing", slog.Any("error", msg.err))
			return a, nil
		}
		a.err = nil
		a.applyListing(msg.listing)
		a.statusMsg = fmt.Sprintf("%d entries", len(a.rows))
		return a, nil

	case saveEventMsg:
		a.applySaveEvent(msg.event)
		return a, a.waitForEvent()

	case queueEventMsg:
		a.applyQueueEvent(msg.event)
		return a, a.waitForEvent()

	case probeTickMsg:
		return a, tea.Batch(a.probe(), a.scheduleProbe())

	case probeResultMsg:
		a.applyProbe(msg.err)
		return a, nil

	case shutdownDoneMsg:
		if errors.Is(msg.err, savecoord.ErrWaitTimeout) {
			a.logger.Warn("Quit with saves still in flight")
		}
		return a, tea.Quit

	case tea.FocusMsg:
		if a.deps.Queue != nil {
			a.deps.Queue.NotifyVisible()
		}
		return a, a.fetchListing()

	case tea.BlurMsg:
		if a.deps.Saver != nil {
			a.deps.Saver.Flush()
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		if a.quitting {
			return a, nil
		}
		a.quitting = true
		a.statusMsg = "Saving before exit..."
		return a, a.shutdown()
	case key.Matches(msg, a.keys.Pane):
		if a.focus == focusEntries {
			a.focus = focusQueue
		} else {
			a.focus = focusEntries
		}
		return a, nil
	case key.Matches(msg, a.keys.Refresh):
		a.statusMsg = "Refreshing..."
		return a, a.fetchListing()
	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil
	}

	if a.focus == focusQueue {
		return a.handleQueueKey(msg)
	}
	return a.handleEntryKey(msg)
}

func (a *App) handleEntryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Up):
		a.moveSelection(-1)
	case key.Matches(msg, a.keys.Down):
		a.moveSelection(1)
	case key.Matches(msg, a.keys.Left):
		if a.category > 0 {
			a.category--
		}
	case key.Matches(msg, a.keys.Right):
		if a.category < len(a.categories)-1 {
			a.category++
		}
	case key.Matches(msg, a.keys.Inc):
		a.adjust(1)
	case key.Matches(msg, a.keys.Dec):
		a.adjust(-1)
	case key.Matches(msg, a.keys.None):
		a.setNone()
	case key.Matches(msg, a.keys.Clear):
		a.edit(scoredomain.Unanswered())
	case key.Matches(msg, a.keys.Save):
		a.commit()
	default:
		if k := msg.String(); len(k) == 1 && k[0] >= '0' && k[0] <= '9' {
			a.edit(scoredomain.Of(int(k[0] - '0')))
		}
	}
	return a, nil
}

func (a *App) handleQueueKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Up):
		if a.queueSel > 0 {
			a.queueSel--
		}
	case key.Matches(msg, a.keys.Down):
		if a.queueSel < len(a.queueItems)-1 {
			a.queueSel++
		}
	case key.Matches(msg, a.keys.Retry):
		if m, ok := a.selectedQueueItem(); ok {
			if err := a.deps.Queue.RetryEntry(a.background, m.EntryID); err != nil {
				a.statusMsg = "Retry failed: " + err.Error()
			} else {
				a.statusMsg = "Retrying " + a.entryName(m.EntryID)
			}
		}
	case key.Matches(msg, a.keys.Discard):
		if m, ok := a.selectedQueueItem(); ok {
			if err := a.deps.Queue.ClearEntry(a.background, m.EntryID); err != nil {
				a.statusMsg = "Clear failed: " + err.Error()
			} else {
				a.statusMsg = "Discarded queued write for " + a.entryName(m.EntryID)
			}
		}
	}
	return a, nil
}

// moveSelection navigates between entries. Leaving an entry flushes its
// debounced values.
func (a *App) moveSelection(delta int) {
	next := a.selected + delta
	if next < 0 || next >= len(a.rows) {
		return
	}
	if a.deps.Saver != nil {
		a.deps.Saver.Flush()
	}
	a.selected = next
}

func (a *App) currentCategory() (scoredomain.Category, bool) {
	if a.category < 0 || a.category >= len(a.categories) {
		return scoredomain.Category{}, false
	}
	return a.categories[a.category], true
}

func (a *App) currentRow() (*row, bool) {
	if a.selected < 0 || a.selected >= len(a.rows) {
		return nil, false
	}
	return &a.rows[a.selected], true
}

func (a *App) adjust(delta int) {
	r, ok := a.currentRow()
	if !ok {
		return
	}
	c, ok := a.currentCategory()
	if !ok {
		return
	}
	n := r.values.Get(c.Name).OrZero() + delta
	if n < 0 {
		n = 0
	}
	if a.deps.MaxScore > 0 && n > a.deps.MaxScore {
		n = a.deps.MaxScore
	}
	a.edit(scoredomain.Of(n))
}

func (a *App) setNone() {
	r, ok := a.currentRow()
	if !ok {
		return
	}
	c, ok := a.currentCategory()
	if !ok {
		return
	}
	r.values = r.values.Merge(scoredomain.Values{c.Name: scoredomain.None()})
	if a.deps.Saver != nil {
		if err := a.deps.Saver.SetNone(r.entry.ID, c.Name); err != nil {
			a.statusMsg = err.Error()
		}
	}
}

// edit applies a value to the selected cell and schedules a debounced save.
func (a *App) edit(v scoredomain.Value) {
	r, ok := a.currentRow()
	if !ok {
		return
	}
	c, ok := a.currentCategory()
	if !ok {
		return
	}
	change := scoredomain.Values{c.Name: v}
	if a.deps.Saver != nil {
		if err := a.deps.Saver.Change(r.entry.ID, change); err != nil {
			a.statusMsg = err.Error()
			return
		}
	}
	r.values = r.values.Merge(change)
}

func (a *App) commit() {
	r, ok := a.currentRow()
	if !ok || a.deps.Saver == nil {
		return
	}
	if err := a.deps.Saver.Commit(r.entry.ID, scoredomain.Values{}); err != nil {
		a.statusMsg = err.Error()
	}
}

func (a *App) applyListing(l *api.Listing) {
	if l == nil {
		return
	}
	categories := append([]scoredomain.Category(nil), l.Categories...)
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].DisplayOrder < categories[j].DisplayOrder
	})
	a.categories = categories
	if a.category >= len(categories) {
		a.category = 0
	}

	// Values edited locally and not yet confirmed win over the server's copy.
	local := make(map[string]scoredomain.Values, len(a.rows))
	for _, r := range a.rows {
		local[r.entry.ID] = r.values
	}
	rows := make([]row, 0, len(l.Entries))
	for _, e := range l.Entries {
		values := e.Values.Clone()
		if a.hasUnconfirmed(e.ID) {
			values = values.Merge(local[e.ID])
		}
		rows = append(rows, row{entry: e, values: values})
	}
	a.rows = rows
	if a.selected >= len(rows) {
		a.selected = max(0, len(rows)-1)
	}
}

func (a *App) hasUnconfirmed(entryID string) bool {
	if a.deps.Queue != nil && a.deps.Queue.Has(entryID) {
		return true
	}
	if a.deps.Coordinator != nil && a.deps.Coordinator.IsPending(entryID) {
		return true
	}
	if a.deps.Saver != nil {
		switch a.deps.Saver.State(entryID) {
		case savecoord.StateSaving, savecoord.StateRetrying:
			return true
		}
	}
	return false
}

func (a *App) applySaveEvent(ev savecoord.Event) {
	a.statusMsg = fmt.Sprintf("%s: %s", a.entryName(ev.EntityID), ev.Message())
	switch ev.Kind {
	case savecoord.EventSaved:
		for i := range a.rows {
			if a.rows[i].entry.ID != ev.EntityID {
				continue
			}
			a.rows[i].entry.Status = ev.Status
			a.rows[i].entry.Total = ev.Total
			if ev.Values != nil {
				a.rows[i].entry.Values = ev.Values.Clone()
			}
		}
	case savecoord.EventRejected:
		a.logger.Warn("Save rejected", slog.String("entry_id", ev.EntityID), slog.Any("error", ev.Err))
	}
	if a.deps.Queue != nil {
		a.queueItems = a.deps.Queue.Snapshot()
	}
}

func (a *App) applyQueueEvent(ev offlinequeue.Event) {
	a.queueItems = a.deps.Queue.Snapshot()
	if a.queueSel >= len(a.queueItems) {
		a.queueSel = max(0, len(a.queueItems)-1)
	}
	switch ev.Kind {
	case offlinequeue.EventSynced:
		a.statusMsg = a.entryName(ev.EntryID) + ": " + savecoord.Event{Kind: savecoord.EventSynced}.Message()
	case offlinequeue.EventAttention:
		a.statusMsg = a.entryName(ev.EntryID) + " needs attention, press tab to review"
	case offlinequeue.EventOnline:
		a.online = true
	case offlinequeue.EventOffline:
		a.online = false
	}
}

// applyProbe reconciles the console's probe with the queue's own view of
// connectivity. The queue confirms with a probe of its own and may stay
// offline after a flaky reconnect, so every successful probe re-signals it
// until it agrees.
func (a *App) applyProbe(err error) {
	wasOnline := a.online
	a.online = err == nil
	if a.deps.Queue == nil {
		return
	}
	queueOnline := a.deps.Queue.Online()
	switch {
	case err != nil:
		if wasOnline {
			a.logger.Warn("Server unreachable", slog.Any("error", err))
		}
		if queueOnline {
			a.deps.Queue.NotifyOffline()
		}
	case !queueOnline:
		if !wasOnline {
			a.logger.Info("Server reachable again")
		}
		a.deps.Queue.NotifyOnline()
	}
}

func (a *App) selectedQueueItem() (offlinequeue.Mutation, bool) {
	if a.deps.Queue == nil || a.queueSel < 0 || a.queueSel >= len(a.queueItems) {
		return offlinequeue.Mutation{}, false
	}
	return a.queueItems[a.queueSel], true
}

func (a *App) entryName(entryID string) string {
	for _, r := range a.rows {
		if r.entry.ID == entryID {
			return r.entry.Name
		}
	}
	return entryID
}

// Overview counts the rows per status, derived locally from the values on
// screen.
func (a *App) Overview() scoredomain.Summary {
	summary := scoredomain.Summary{}
	for _, r := range a.rows {
		summary.Add(r.status(a.categories))
	}
	return summary
}
