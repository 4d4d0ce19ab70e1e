package cli

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding
	Up       key.Binding
	Down     key.Binding
	Start    key.Binding
	Stop     key.Binding
	Restart  key.Binding
	Sync     key.Binding
	Open     key.Binding
	Delete   key.Binding
	Add      key.Binding
	Reload   key.Binding
	StartAll key.Binding
	StopAll  key.Binding
	Shutdown key.Binding
	Help     key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	NextTab:  key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next tab")),
	PrevTab:  key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev tab")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	Start:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
	Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
	Restart:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
	Sync:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "git sync")),
	Open:     key.NewBinding(key.WithKeys("o", "enter"), key.WithHelp("o", "open in browser")),
	Delete:   key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
	Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add project")),
	Reload:   key.NewBinding(key.WithKeys("ctrl+r", "f5"), key.WithHelp("^R", "reload")),
	StartAll: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "start all")),
	StopAll:  key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "stop all")),
	Shutdown: key.NewBinding(key.WithKeys("Q"), key.WithHelp("Q", "shutdown pm2")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.Start, k.Stop, k.Restart, k.Sync, k.Open, k.Add, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextTab, k.PrevTab, k.Up, k.Down, k.Reload},
		{k.Start, k.Stop, k.Restart, k.Sync, k.Open},
		{k.Add, k.Delete, k.StartAll, k.StopAll, k.Shutdown},
		{k.Help, k.Quit},
	}
}
