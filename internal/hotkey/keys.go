package hotkey

import "runtime"

// keymap holds the platform rawcodes watched by the listener. gohook reports
// X11 keysyms on Linux, Carbon virtual keycodes on macOS, and VK codes on
// Windows.
type keymap struct {
	Modifier uint16 // right option / right alt
	Enter    uint16
	Escape   uint16
}

func platformKeymap() keymap {
	switch runtime.GOOS {
	case "darwin":
		return keymap{Modifier: 61, Enter: 36, Escape: 53}
	case "windows":
		return keymap{Modifier: 165, Enter: 13, Escape: 27}
	default:
		// X11 keysyms: Alt_R, Return, Escape.
		return keymap{Modifier: 65514, Enter: 65293, Escape: 65307}
	}
}
