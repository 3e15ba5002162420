package osbridge

import (
	"strconv"

	"ghostshell/internal/domain"
)

// Step is one program invocation. Tolerant steps ignore a non-zero exit,
// which is how kill utilities report that nothing matched.
type Step struct {
	Name     string
	Args     []string
	Tolerant bool
}

// CommandSpec holds the steps for one action. Primary needs the helper
// executable; Fallback runs without it.
type CommandSpec struct {
	Primary  []Step
	Fallback []Step
}

// Steps picks the variant matching helper availability.
func (c CommandSpec) Steps(hasHelper bool) []Step {
	if hasHelper && len(c.Primary) > 0 {
		return c.Primary
	}
	return c.Fallback
}

// defaultHelper is the helper looked up when none is configured.
func defaultHelper(goos string) string {
	switch goos {
	case "windows":
		return "nircmd.exe"
	case "linux":
		return "pactl"
	default:
		return ""
	}
}

// commandTable returns the per-platform specs. helper is substituted into
// primary steps that invoke it.
func commandTable(goos string, helper string) map[domain.OSAction]CommandSpec {
	switch goos {
	case "windows":
		return windowsCommands(helper)
	case "darwin":
		return darwinCommands()
	default:
		return linuxCommands(helper)
	}
}

func windowsCommands(helper string) map[domain.OSAction]CommandSpec {
	sendKeys := func(key int, times int) Step {
		script := "$w=New-Object -Com WScript.Shell;"
		if times > 1 {
			script += "for($i=0;$i -lt " + strconv.Itoa(times) + ";$i++){$w.SendKeys([char]" + strconv.Itoa(key) + ")}"
		} else {
			script += "$w.SendKeys([char]" + strconv.Itoa(key) + ")"
		}
		return Step{Name: "powershell", Args: []string{"-WindowStyle", "Hidden", "-Command", script}}
	}

	return map[domain.OSAction]CommandSpec{
		domain.OSActionPanicMode: {Fallback: []Step{
			{Name: "taskkill", Args: []string{"/F", "/IM", "chrome.exe", "/T"}, Tolerant: true},
			{Name: "taskkill", Args: []string{"/F", "/IM", "msedge.exe", "/T"}, Tolerant: true},
			{Name: "powershell", Args: []string{"-WindowStyle", "Hidden", "-Command", "Clear-History"}, Tolerant: true},
		}},
		domain.OSActionVolumeUp: {
			Primary:  []Step{{Name: helper, Args: []string{"changesysvolume", "5000"}}},
			Fallback: []Step{sendKeys(175, 5)},
		},
		domain.OSActionVolumeDown: {
			Primary:  []Step{{Name: helper, Args: []string{"changesysvolume", "-5000"}}},
			Fallback: []Step{sendKeys(174, 5)},
		},
		domain.OSActionVolumeMute: {
			Primary:  []Step{{Name: helper, Args: []string{"mutesysvolume", "2"}}},
			Fallback: []Step{sendKeys(173, 1)},
		},
	}
}

func linuxCommands(helper string) map[domain.OSAction]CommandSpec {
	return map[domain.OSAction]CommandSpec{
		domain.OSActionPanicMode: {Fallback: []Step{
			{Name: "pkill", Args: []string{"-f", "chrome"}, Tolerant: true},
			{Name: "pkill", Args: []string{"-f", "msedge"}, Tolerant: true},
			{Name: "sh", Args: []string{"-c", `: > "${XDG_DATA_HOME:-$HOME/.local/share}/recently-used.xbel"`}, Tolerant: true},
		}},
		domain.OSActionVolumeUp: {
			Primary:  []Step{{Name: helper, Args: []string{"set-sink-volume", "@DEFAULT_SINK@", "+5%"}}},
			Fallback: []Step{{Name: "amixer", Args: []string{"-q", "set", "Master", "5%+"}}},
		},
		domain.OSActionVolumeDown: {
			Primary:  []Step{{Name: helper, Args: []string{"set-sink-volume", "@DEFAULT_SINK@", "-5%"}}},
			Fallback: []Step{{Name: "amixer", Args: []string{"-q", "set", "Master", "5%-"}}},
		},
		domain.OSActionVolumeMute: {
			Primary:  []Step{{Name: helper, Args: []string{"set-sink-mute", "@DEFAULT_SINK@", "toggle"}}},
			Fallback: []Step{{Name: "amixer", Args: []string{"-q", "set", "Master", "toggle"}}},
		},
	}
}

func darwinCommands() map[domain.OSAction]CommandSpec {
	osascript := func(script string) []Step {
		return []Step{{Name: "osascript", Args: []string{"-e", script}}}
	}

	return map[domain.OSAction]CommandSpec{
		domain.OSActionPanicMode: {Fallback: []Step{
			{Name: "pkill", Args: []string{"-x", "Google Chrome"}, Tolerant: true},
			{Name: "pkill", Args: []string{"-x", "Microsoft Edge"}, Tolerant: true},
			{Name: "defaults", Args: []string{"delete", "com.apple.recentitems"}, Tolerant: true},
		}},
		domain.OSActionVolumeUp:   {Fallback: osascript("set volume output volume ((output volume of (get volume settings)) + 6)")},
		domain.OSActionVolumeDown: {Fallback: osascript("set volume output volume ((output volume of (get volume settings)) - 6)")},
		domain.OSActionVolumeMute: {Fallback: osascript("set volume output muted not (output muted of (get volume settings))")},
	}
}
