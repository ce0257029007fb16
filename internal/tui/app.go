// Package tui is the terminal front end. It renders snapshots owned by the
// chat view and the domain services, and re-draws on bus events.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/peerflex/peerflex/internal/backend"
	"github.com/peerflex/peerflex/internal/bus"
	"github.com/peerflex/peerflex/internal/chatview"
	"github.com/peerflex/peerflex/internal/services"
	"github.com/peerflex/peerflex/internal/status"
	"github.com/peerflex/peerflex/internal/store"
	"github.com/peerflex/peerflex/internal/tui/keys"
	"github.com/peerflex/peerflex/internal/tui/ui"
	"github.com/peerflex/peerflex/internal/tui/views"
)

// Deps bundles everything the shell renders from.
type Deps struct {
	Profile       string
	Client        *backend.Client
	Feed          *backend.Feed
	Machine       *status.Machine
	Bus           *bus.Bus
	Store         *store.DB
	View          *chatview.View
	Events        *services.EventService
	Connections   *services.ConnectionService
	Notifications *services.NotificationService
	Me            *services.ProfileService
	Locations     *services.LocationService
	Logger        *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	deps Deps

	app       *tview.Application
	pages     *tview.Pages
	registry  *keys.Registry
	flash     *ui.Flash
	statusBar *views.StatusBar
	convList  *views.ConversationList
	thread    *views.MessageThread
	composer  *views.Composer
	eventList *views.EventList
	connList  *views.ConnectionList
	noteList  *views.NotificationList
	loginView *views.LoginView

	events  []services.Event
	ctx     context.Context
	cancel  context.CancelFunc
	unsub   func()
	noteSub services.Subscription
}

// NewApp creates the TUI application.
func NewApp(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())

	theme := ui.DefaultTheme()
	if deps.Store != nil {
		if pref, err := deps.Store.GetPref("theme", "dark"); err == nil && pref == "light" {
			theme = ui.LightTheme()
		}
	}
	tview.Styles.PrimitiveBackgroundColor = theme.BgColor
	tview.Styles.PrimaryTextColor = theme.FgColor
	tview.Styles.BorderColor = theme.BorderColor
	tview.Styles.TitleColor = theme.TitleColor
	tview.Styles.ContrastBackgroundColor = theme.TableCursorBg

	a := &App{
		deps:      deps,
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		registry:  keys.NewRegistry(),
		flash:     &ui.Flash{},
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(),
		thread:    views.NewMessageThread(),
		composer:  views.NewComposer(),
		eventList: views.NewEventList(),
		connList:  views.NewConnectionList(),
		noteList:  views.NewNotificationList(),
		loginView: views.NewLoginView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(deps.Profile)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.Bind("", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.Bind("", &keys.Action{
		Rune: 'e', Key: tcell.KeyRune,
		Description: "e:events", Visible: true,
		Handler: func() { a.showEvents() },
	})
	a.registry.Bind("", &keys.Action{
		Rune: 'c', Key: tcell.KeyRune,
		Description: "c:requests", Visible: true,
		Handler: func() { a.showConnections() },
	})
	a.registry.Bind("chats", &keys.Action{
		Rune: 'R', Key: tcell.KeyRune,
		Description: "R:refresh", Visible: true,
		Handler: func() {
			go func() {
				if err := a.deps.View.Refresh(a.ctx); err != nil {
					a.flashErr("Refresh failed: " + err.Error())
				}
			}()
		},
	})
	a.registry.Bind("events", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:register", Visible: true,
		Handler: func() { a.registerForSelectedEvent() },
	})
	a.registry.Bind("", &keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Description: "n:notifications", Visible: true,
		Handler: func() { a.showNotifications() },
	})
	a.registry.Bind("notifications", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Description: "m:mark all read", Visible: true,
		Handler: func() { a.markAllNotificationsRead() },
	})
	a.registry.Bind("events", &keys.Action{
		Rune: 'l', Key: tcell.KeyRune,
		Description: "l:locate", Visible: true,
		Handler: func() { a.locateSelectedEvent() },
	})
	a.registry.Bind("connections", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Description: "a:accept", Visible: true,
		Handler: func() { a.resolveSelectedRequest(true) },
	})
	a.registry.Bind("connections", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "x:reject", Visible: true,
		Handler: func() { a.resolveSelectedRequest(false) },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		id := a.convList.SelectedConversation()
		if id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.deps.View.SendMessage(a.ctx, text); err != nil {
				a.flashErr("Send failed: " + err.Error())
			}
		}()
	})

	a.loginView.SetOnSubmit(func(email, password string) {
		go a.signIn(email, password)
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("login", a.loginView.Root(), true, false)
	a.pages.AddPage("chats", a.convList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("events", a.eventList, true, false)
	a.pages.AddPage("connections", a.connList, true, false)
	a.pages.AddPage("notifications", a.noteList, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "events", "connections", "notifications":
				a.pages.SwitchToPage("chats")
				a.app.SetFocus(a.convList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}
		if currentPage == "login" {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	ch, unsub := a.deps.Bus.Subscribe("", 64)
	a.unsub = unsub
	go a.drainBus(ch)

	if a.deps.Client.CurrentSession() == nil {
		a.pages.SwitchToPage("login")
		a.app.SetFocus(a.loginView.Form)
	} else {
		go a.startSignedIn()
	}

	return a.app.Run()
}

// drainBus redraws the front page whenever a domain event lands.
func (a *App) drainBus(ch <-chan bus.Event) {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ch:
			a.app.QueueUpdateDraw(func() { a.render() })
		}
	}
}

func (a *App) render() {
	currentPage, _ := a.pages.GetFrontPage()
	switch currentPage {
	case "chats":
		a.convList.Update(a.deps.View.Conversations())
	case "chat":
		a.thread.Update(a.deps.View.Messages())
	case "events":
		a.eventList.Update(a.events)
	}
	a.statusBar.SetStatus(string(a.deps.Machine.Current()))
	a.statusBar.SetFlash(a.flash.Get())
}

func (a *App) signIn(email, password string) {
	session, err := a.deps.Client.SignIn(a.ctx, email, password)
	if err != nil {
		a.app.QueueUpdateDraw(func() {
			a.loginView.ShowMessage("[red]" + err.Error())
		})
		return
	}
	if err := a.deps.Store.SaveSession(*session); err != nil {
		a.deps.Logger.Warn("session not persisted", zap.Error(err))
	}

	a.app.QueueUpdateDraw(func() {
		if a.thread != nil {
			a.thread.SetSelf(session.UserID)
		}
		a.pages.SwitchToPage("chats")
		a.app.SetFocus(a.convList)
	})
	a.startSignedIn()
}

// startSignedIn brings the signed-in surface up: the change feed, the chat
// view with its roster listener, and the notification toast stream.
func (a *App) startSignedIn() {
	if s := a.deps.Client.CurrentSession(); s != nil {
		a.thread.SetSelf(s.UserID)
		go func() {
			me, err := a.deps.Me.Get(a.ctx)
			if err != nil {
				a.deps.Logger.Warn("profile fetch failed", zap.Error(err))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetProfile(a.deps.Profile + " · " + me.FullName)
			})
		}()
	}
	a.deps.Feed.Start(a.ctx)
	a.deps.View.Start(a.ctx)

	if err := a.deps.View.LoadConversations(a.ctx, false); err != nil {
		a.flashErr("Load failed: " + err.Error())
	}

	sub, err := a.deps.Notifications.Subscribe(func(n services.Notification) {
		a.flash.Set(n.Title, 5*time.Second)
		a.app.QueueUpdateDraw(func() { a.render() })
	})
	if err != nil {
		a.deps.Logger.Warn("notification subscription failed", zap.Error(err))
	} else {
		a.noteSub = sub
	}

	a.app.QueueUpdateDraw(func() { a.render() })
}

func (a *App) openConversation(id string) {
	go func() {
		if err := a.deps.View.SelectConversation(a.ctx, id); err != nil {
			a.flashErr("Load failed: " + err.Error())
			return
		}
		name := id
		for _, c := range a.deps.View.Conversations() {
			if c.ID == id {
				if c.Name != "" {
					name = c.Name
				}
				break
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetConversationName(name)
			a.thread.Update(a.deps.View.Messages())
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.thread)
		})
	}()
}

func (a *App) showEvents() {
	go func() {
		events, err := a.deps.Events.ListEvents(a.ctx)
		if err != nil {
			a.flashErr("Events failed: " + err.Error())
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.events = events
			a.eventList.Update(events)
			a.pages.SwitchToPage("events")
			a.app.SetFocus(a.eventList)
		})
	}()
}

func (a *App) registerForSelectedEvent() {
	id := a.eventList.SelectedEvent()
	if id == "" {
		return
	}
	go func() {
		_, err := a.deps.Events.Register(a.ctx, id)
		if err != nil {
			a.flashErr("Register failed: " + err.Error())
			return
		}
		a.flash.Set("Registered", 5*time.Second)
		a.app.QueueUpdateDraw(func() { a.render() })
	}()
}

func (a *App) showNotifications() {
	go func() {
		notifications, err := a.deps.Notifications.List(a.ctx)
		if err != nil {
			a.flashErr("Notifications failed: " + err.Error())
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.noteList.Update(notifications)
			a.pages.SwitchToPage("notifications")
			a.app.SetFocus(a.noteList)
		})
	}()
}

func (a *App) markAllNotificationsRead() {
	go func() {
		if err := a.deps.Notifications.MarkAllRead(a.ctx); err != nil {
			a.flashErr("Mark read failed: " + err.Error())
			return
		}
		a.showNotifications()
	}()
}

func (a *App) locateSelectedEvent() {
	id := a.eventList.SelectedEvent()
	if id == "" {
		return
	}
	var where string
	for _, e := range a.events {
		if e.ID == id {
			where = e.Location
			break
		}
	}
	if where == "" {
		return
	}
	go func() {
		places, err := a.deps.Locations.Search(a.ctx, where)
		if err != nil {
			a.flashErr("Locate failed: " + err.Error())
			return
		}
		if len(places) == 0 {
			a.flash.Set("No match for "+where, 5*time.Second)
		} else {
			a.flash.Set(fmt.Sprintf("%s (%.5f, %.5f)", places[0].Name, places[0].Lat, places[0].Lon), 8*time.Second)
		}
		a.app.QueueUpdateDraw(func() { a.render() })
	}()
}

func (a *App) showConnections() {
	go func() {
		pending, err := a.deps.Connections.ListPending(a.ctx)
		if err != nil {
			a.flashErr("Requests failed: " + err.Error())
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.connList.Update(pending)
			a.pages.SwitchToPage("connections")
			a.app.SetFocus(a.connList)
		})
	}()
}

func (a *App) resolveSelectedRequest(accept bool) {
	id := a.connList.SelectedRequest()
	if id == "" {
		return
	}
	go func() {
		var err error
		if accept {
			_, err = a.deps.Connections.AcceptRequestByID(a.ctx, id)
		} else {
			_, err = a.deps.Connections.RejectRequestByID(a.ctx, id)
		}
		if err != nil {
			a.flashErr("Request failed: " + err.Error())
			return
		}
		a.showConnections()
	}()
}

func (a *App) flashErr(msg string) {
	a.flash.Set(msg, 5*time.Second)
	a.app.QueueUpdateDraw(func() { a.render() })
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	if a.noteSub != nil {
		a.noteSub.Unsubscribe()
	}
	if a.unsub != nil {
		a.unsub()
	}
	a.cancel()
	a.app.Stop()
}
