package tray

import (
	"fmt"
	"sync"
)

// Identity is what the tray shows about the running assistant.
type Identity struct {
	Name     string
	Version  string
	Operator string
}

// Actions are invoked from the tray's own goroutine.
type Actions struct {
	Show func()
	Quit func()
}

// Entry is one row of the tray menu. Rows without OnClick are informational
// and rendered disabled.
type Entry struct {
	Label     string
	Separator bool
	OnClick   func()
}

func Entries(id Identity, a Actions) []Entry {
	return []Entry{
		{Label: fmt.Sprintf("%s v%s", id.Name, id.Version)},
		{Label: "Operador: " + id.Operator},
		{Separator: true},
		{Label: "Abrir Dashboard", OnClick: a.show},
		{Label: "Sair do Sistema", OnClick: a.quit},
	}
}

func Tooltip(id Identity) string {
	return "GHOST System - " + id.Operator
}

func (a Actions) show() {
	if a.Show != nil {
		a.Show()
	}
}

func (a Actions) quit() {
	if a.Quit != nil {
		a.Quit()
	}
}

// Icon is the running tray icon.
type Icon struct {
	stopOnce sync.Once
	stop     func()
}

// Start places the icon in the notification area. Double-clicking it runs
// Actions.Show. On platforms without a tray Start returns an inert Icon and
// Supported reports false.
func Start(id Identity, a Actions) *Icon {
	return &Icon{stop: start(id, a)}
}

// Stop removes the icon. Stop is idempotent and safe on a nil Icon.
func (i *Icon) Stop() {
	if i == nil {
		return
	}
	i.stopOnce.Do(func() {
		if i.stop != nil {
			i.stop()
		}
	})
}
