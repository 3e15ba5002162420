//go:build windows || linux

package tray

import (
	"github.com/energye/systray"
)

// Supported reports whether Start shows a real icon.
func Supported() bool { return true }

func start(id Identity, a Actions) func() {
	onReady := func() {
		systray.SetIcon(trayIcon())
		systray.SetTitle(id.Name)
		systray.SetTooltip(Tooltip(id))

		for _, entry := range Entries(id, a) {
			if entry.Separator {
				systray.AddSeparator()
				continue
			}
			item := systray.AddMenuItem(entry.Label, entry.Label)
			if entry.OnClick == nil {
				item.Disable()
				continue
			}
			item.Click(entry.OnClick)
		}
		systray.SetOnDClick(func(systray.IMenu) { a.show() })
		systray.SetOnRClick(func(menu systray.IMenu) { _ = menu.ShowMenu() })
		systray.CreateMenu()
	}

	run, end := systray.RunWithExternalLoop(onReady, nil)
	go run()
	return end
}
