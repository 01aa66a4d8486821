package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/tui/keys"
	"github.com/sherry5707/Messaging/internal/tui/model"
	"github.com/sherry5707/Messaging/internal/tui/ui"
	"github.com/sherry5707/Messaging/internal/tui/views"
)

// Page names.
const (
	pageConversations = "conversations"
	pageMessages      = "messages"
	pageFavorites     = "favorites"
	pageHelp          = "help"
)

const (
	callTimeout    = 5 * time.Second
	rewatchBackoff = 2 * time.Second
	clockInterval  = 5 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	root      *tview.Flex
	vm        *model.ViewModel
	backend   Backend
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	favView   *views.FavoritesView
	helpView  *views.HelpView
	prompt    *views.Prompt
	back      string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(b Backend, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(b),
		backend:   b,
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		convList:  views.NewConversationList(theme),
		msgView:   views.NewMessageView(theme),
		favView:   views.NewFavoritesView(theme),
		helpView:  views.NewHelpView(theme),
		prompt:    views.NewPrompt(theme),
		back:      pageConversations,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Name: "quit", Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "help", Key: tcell.KeyRune, Rune: '?',
		Description: "?:help", Visible: true,
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "command", Key: tcell.KeyRune, Rune: ':',
		Description: ":cmd",
		Handler:     func() { a.openPrompt(views.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "back", Key: tcell.KeyEscape,
		Description: "Esc:back",
		Handler:     a.goBack,
	})

	a.registry.AddView(pageConversations, &keys.Action{
		Name: "read", Key: tcell.KeyRune, Rune: 'r',
		Description: "r:read", Visible: true,
		Handler: func() { a.onConversation(func(ctx context.Context, c api.Conversation) error { return a.vm.SetRead(ctx, c, true) }) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "unread", Key: tcell.KeyRune, Rune: 'u',
		Description: "u:unread", Visible: true,
		Handler: func() { a.onConversation(func(ctx context.Context, c api.Conversation) error { return a.vm.SetRead(ctx, c, false) }) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "pin", Key: tcell.KeyRune, Rune: 'p',
		Description: "p:pin", Visible: true,
		Handler: func() { a.onConversation(func(ctx context.Context, c api.Conversation) error { return a.vm.TogglePinned(ctx, c) }) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "archive", Key: tcell.KeyRune, Rune: 'a',
		Description: "a:archive", Visible: true,
		Handler: func() { a.onConversation(func(ctx context.Context, c api.Conversation) error { return a.vm.ToggleArchived(ctx, c) }) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "search", Key: tcell.KeyRune, Rune: '/',
		Description: "/:search", Visible: true,
		Handler: func() { a.openPrompt(views.PromptSearch, a.vm.Search()) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "favorites", Key: tcell.KeyRune, Rune: 'v',
		Description: "v:favorites", Visible: true,
		Handler: a.showFavorites,
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "archived", Key: tcell.KeyRune, Rune: 'A',
		Description: "A:archive view", Visible: true,
		Handler: func() { a.setArchived(!a.vm.Archived()) },
	})

	a.registry.AddView(pageMessages, &keys.Action{
		Name: "favorite", Key: tcell.KeyRune, Rune: 'f',
		Description: "f:favorite", Visible: true,
		Handler: func() {
			m, ok := a.msgView.SelectedMessage()
			if !ok {
				return
			}
			a.async(func(ctx context.Context) error { return a.vm.ToggleFavorite(ctx, m) })
		},
	})
	a.registry.AddView(pageMessages, &keys.Action{
		Name: "unread", Key: tcell.KeyRune, Rune: 'u',
		Description: "u:unread", Visible: true,
		Handler: func() {
			id := a.vm.ActiveConversation()
			if id == "" {
				return
			}
			a.async(func(ctx context.Context) error {
				return a.vm.SetRead(ctx, api.Conversation{ID: id}, false)
			})
		},
	})

	a.registry.AddView(pageFavorites, &keys.Action{
		Name: "remove", Key: tcell.KeyRune, Rune: 'd',
		Description: "d:remove", Visible: true,
		Handler: func() {
			f, ok := a.favView.SelectedFavorite()
			if !ok {
				return
			}
			a.async(func(ctx context.Context) error { return a.vm.RemoveFavorite(ctx, f) })
		},
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(int, int) {
		if a.convList.SearchBannerSelected() {
			a.openPrompt(views.PromptSearch, a.vm.Search())
			return
		}
		if a.convList.FavoritesSelected() {
			a.showFavorites()
			return
		}
		if c, ok := a.convList.SelectedConversation(); ok {
			a.openConversation(c, pageConversations)
		}
	})

	a.favView.SetSelectedFunc(func(int, int) {
		f, ok := a.favView.SelectedFavorite()
		if !ok {
			return
		}
		a.openConversation(api.Conversation{ID: f.ConversationID, Name: f.FullName}, pageFavorites)
	})

	a.prompt.SetOnSubmit(func(mode, text string) {
		a.closePrompt()
		if mode == views.PromptCommand {
			a.runCommand(ParseCommand(text))
			return
		}
		a.setSearch(text)
	})
	a.prompt.SetOnCancel(func(string) { a.closePrompt() })
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageConversations, a.convList, true, true)
	a.pages.AddPage(pageMessages, a.msgView, true, false)
	a.pages.AddPage(pageFavorites, a.favView, true, false)
	a.pages.AddPage(pageHelp, a.helpView, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.statusBar.SetHints(a.registry.Hints(pageConversations))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Let the prompt handle all keys normally.
		if a.prompt.HasFocus() {
			return event
		}
		if a.registry.HandleEvent(a.currentPage(), event) {
			return nil
		}
		return event
	})
}

func (a *App) currentPage() string {
	name, _ := a.pages.GetFrontPage()
	return name
}

func (a *App) switchTo(page string) {
	a.pages.SwitchToPage(page)
	a.statusBar.SetHints(a.registry.Hints(page))
	switch page {
	case pageConversations:
		a.app.SetFocus(a.convList)
	case pageMessages:
		a.app.SetFocus(a.msgView)
	case pageFavorites:
		a.app.SetFocus(a.favView)
	case pageHelp:
		a.app.SetFocus(a.helpView)
	}
}

// async runs fn off the UI goroutine and redraws afterwards. Errors land in
// the flash line.
func (a *App) async(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && a.ctx.Err() == nil {
			if msg, _ := a.vm.Flash.Current(); msg == "" {
				a.vm.Flash.SetLevel(model.FlashErr, err.Error(), 5*time.Second)
			}
		}
		a.app.QueueUpdateDraw(a.sync)
	}()
}

func (a *App) onConversation(fn func(context.Context, api.Conversation) error) {
	c, ok := a.convList.SelectedConversation()
	if !ok {
		return
	}
	a.async(func(ctx context.Context) error { return fn(ctx, c) })
}

func (a *App) openConversation(c api.Conversation, from string) {
	a.async(func(ctx context.Context) error {
		if err := a.vm.LoadMessages(ctx, c.ID); err != nil {
			return err
		}
		name := a.vm.Thread().Name
		if name == "" {
			name = c.ID
		}
		a.app.QueueUpdateDraw(func() {
			a.back = from
			a.msgView.SetConversationName(name)
			a.msgView.Update(a.vm.Messages())
			a.switchTo(pageMessages)
		})
		if c.UnreadCount > 0 {
			return a.vm.SetRead(ctx, c, true)
		}
		return nil
	})
}

func (a *App) showFavorites() {
	a.async(func(ctx context.Context) error {
		if err := a.vm.LoadFavorites(ctx); err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() { a.switchTo(pageFavorites) })
		return nil
	})
}

func (a *App) showHelp() {
	a.helpView.Update([]views.HelpGroup{
		{Title: "Conversations", Hints: append(a.registry.Hints(pageConversations), "Enter:open")},
		{Title: "Messages", Hints: a.registry.Hints(pageMessages)},
		{Title: "Favorites", Hints: append(a.registry.Hints(pageFavorites), "Enter:open")},
	})
	if page := a.currentPage(); page != pageHelp {
		a.back = page
	}
	a.switchTo(pageHelp)
}

// goBack closes the front page, or on the list leaves search and then the
// archive.
func (a *App) goBack() {
	switch a.currentPage() {
	case pageMessages:
		a.vm.CloseConversation()
		a.switchTo(a.back)
		a.back = pageConversations
	case pageFavorites, pageHelp:
		a.switchTo(pageConversations)
	case pageConversations:
		switch {
		case a.vm.Search() != "":
			a.setSearch("")
		case a.vm.Archived():
			a.setArchived(false)
		}
	}
}

func (a *App) openPrompt(mode, text string) {
	a.prompt.Open(mode, text)
	a.root.ResizeItem(a.prompt, 1, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.switchTo(a.currentPage())
}

func (a *App) setSearch(q string) {
	a.vm.SetSearch(q)
	a.async(a.vm.RefreshConversations)
}

func (a *App) setArchived(archived bool) {
	a.vm.SetArchived(archived)
	a.async(a.vm.RefreshConversations)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case CmdInbox:
		a.switchTo(pageConversations)
		a.setArchived(false)
	case CmdArchived:
		a.switchTo(pageConversations)
		a.setArchived(true)
	case CmdFavorites:
		a.showFavorites()
	case CmdSearch:
		a.switchTo(pageConversations)
		a.setSearch(cmd.Args)
	case CmdHelp:
		a.showHelp()
	case CmdQuit:
		a.Stop()
	case "":
	default:
		a.vm.Flash.SetLevel(model.FlashWarn, "unknown command: "+cmd.Name, 3*time.Second)
		a.sync()
	}
}

// sync pushes the view model into the widgets. It must run on the UI
// goroutine.
func (a *App) sync() {
	a.convList.Update(a.vm.Conversations())
	if a.vm.ActiveConversation() != "" {
		a.msgView.Update(a.vm.Messages())
	}
	a.favView.Update(a.vm.Favorites())
	a.statusBar.SetStatus(a.vm.Status())
	a.statusBar.SetFlash(a.vm.Flash.Current())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		if err := a.vm.LoadStatus(ctx); err != nil {
			a.vm.Flash.SetLevel(model.FlashErr, "status: "+err.Error(), 5*time.Second)
		}
		if err := a.vm.RefreshConversations(ctx); err != nil {
			a.vm.Flash.SetLevel(model.FlashErr, "load: "+err.Error(), 5*time.Second)
		}
		cancel()
		a.app.QueueUpdateDraw(a.sync)
	}()
	go a.watchLoop()
	go a.feedLoop()
	go a.favoritesLoop()
	go a.redrawLoop()

	return a.app.Run()
}

// watchLoop applies change hints until the app stops, reconnecting when the
// stream drops.
func (a *App) watchLoop() {
	for {
		err := a.backend.Watch(a.ctx, api.WatchRequest{}, func(ch api.Change) error {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			if err := a.vm.Apply(ctx, ch); err != nil {
				a.vm.Flash.SetLevel(model.FlashErr, "refresh: "+err.Error(), 5*time.Second)
			}
			return nil
		})
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.SetLevel(model.FlashWarn, "watch lost: "+err.Error(), rewatchBackoff)
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(rewatchBackoff):
		}
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		_ = a.vm.LoadStatus(ctx)
		_ = a.vm.RefreshConversations(ctx)
		cancel()
	}
}

// feedLoop keeps a conversation feed attached to the view model, reopening
// it when it drops. While detached the list falls back to one-shot loads.
func (a *App) feedLoop() {
	for {
		err := a.follow()
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.SetLevel(model.FlashWarn, "list feed lost: "+err.Error(), rewatchBackoff)
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(rewatchBackoff):
		}
	}
}

func (a *App) follow() error {
	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	opened := a.vm.ConversationsRequest()
	feed, err := a.backend.OpenConversationFeed(ctx, opened)
	if err != nil {
		return err
	}
	if err := a.vm.AttachFeed(feed, opened); err != nil {
		a.vm.DetachFeed()
		return err
	}
	defer a.vm.DetachFeed()
	for {
		resp, err := feed.Recv()
		if err != nil {
			return err
		}
		a.vm.ReceiveConversations(resp)
	}
}

// favoritesLoop keeps the favorites page current from the daemon's
// favorites stream.
func (a *App) favoritesLoop() {
	for {
		a.vm.SetFollowingFavorites(true)
		err := a.backend.FollowFavorites(a.ctx, model.FavoritesLimit, func(favs []api.Favorite) error {
			a.vm.ReceiveFavorites(favs)
			return nil
		})
		a.vm.SetFollowingFavorites(false)
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.SetLevel(model.FlashWarn, "favorites feed lost: "+err.Error(), rewatchBackoff)
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(rewatchBackoff):
		}
	}
}

// redrawLoop redraws when the view model changes, and on a slow tick for
// the clock and flash expiry.
func (a *App) redrawLoop() {
	ticker := time.NewTicker(clockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		a.app.QueueUpdateDraw(a.sync)
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
