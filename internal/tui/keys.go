package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Start       key.Binding
	Screenshot  key.Binding
	Stop        key.Binding
	CancelDelay key.Binding
	DelayUp     key.Binding
	DelayDown   key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start: key.NewBinding(
			key.WithKeys("enter", "s"),
			key.WithHelp("enter/s", "start sharing"),
		),
		Screenshot: key.NewBinding(
			key.WithKeys("ctrl+s", " "),
			key.WithHelp("ctrl+s", "screenshot"),
		),
		Stop: key.NewBinding(
			key.WithKeys("ctrl+q", "x"),
			key.WithHelp("ctrl+q", "stop sharing"),
		),
		CancelDelay: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel delay"),
		),
		DelayUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "delay up"),
		),
		DelayDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "delay down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Screenshot, k.Stop, k.CancelDelay, k.DelayUp, k.DelayDown, k.Quit}
}
