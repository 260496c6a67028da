package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up           key.Binding
	Down         key.Binding
	NextFile     key.Binding
	PrevFile     key.Binding
	NextHunk     key.Binding
	PrevHunk     key.Binding
	Toggle       key.Binding
	Order        key.Binding
	Cluster      key.Binding
	ClearCluster key.Binding
	Rank         key.Binding
	Comment      key.Binding
	Thread       key.Binding
	NextComment  key.Binding
	Resolve      key.Binding
	Delete       key.Binding
	Submit       key.Binding
	Cancel       key.Binding
	Help         key.Binding
	Quit         key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	NextFile: key.NewBinding(
		key.WithKeys("n", "tab"),
		key.WithHelp("n/tab", "next file"),
	),
	PrevFile: key.NewBinding(
		key.WithKeys("N", "shift+tab"),
		key.WithHelp("N/S-tab", "prev file"),
	),
	NextHunk: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "next hunk"),
	),
	PrevHunk: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "prev hunk"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "unified/split"),
	),
	Order: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "review order"),
	),
	Cluster: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "next cluster"),
	),
	ClearCluster: key.NewBinding(
		key.WithKeys("G"),
		key.WithHelp("G", "all clusters"),
	),
	Rank: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "jump to rank"),
	),
	Comment: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "comment"),
	),
	Thread: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "show thread"),
	),
	NextComment: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "select comment"),
	),
	Resolve: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resolve comment"),
	),
	Delete: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "delete comment"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "post"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
