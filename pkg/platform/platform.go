// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"path/filepath"
	"runtime"
)

// AppName names buckle's per-user directories.
const AppName = "buckle"

// Platform is an operating system family.
type Platform int

const (
	// Other is any platform without a dedicated convention; it follows Linux.
	Other Platform = iota
	// Linux follows the XDG base directory specification.
	Linux
	// Darwin uses ~/Library.
	Darwin
	// Windows uses %LOCALAPPDATA% and %APPDATA%.
	Windows
)

// For maps a GOOS value to a Platform.
func For(goos string) Platform {
	switch goos {
	case "linux":
		return Linux
	case "darwin":
		return Darwin
	case "windows":
		return Windows
	default:
		return Other
	}
}

// Current returns the Platform of the running binary.
func Current() Platform { return For(runtime.GOOS) }

// String implements fmt.Stringer.
func (p Platform) String() string {
	switch p {
	case Linux:
		return "linux"
	case Darwin:
		return "darwin"
	case Windows:
		return "windows"
	default:
		return "other"
	}
}

// CacheRoot returns the per-user download cache directory. getenv supplies
// environment lookups and home is the user's home directory.
func (p Platform) CacheRoot(getenv func(string) string, home string) string {
	switch p {
	case Darwin:
		return filepath.Join(home, "Library", "Caches", AppName)
	case Windows:
		base := getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, AppName, "cache")
	default:
		if xdg := getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		return filepath.Join(home, ".cache", AppName)
	}
}

// ConfigDir returns the per-user configuration directory.
func (p Platform) ConfigDir(getenv func(string) string, home string) string {
	switch p {
	case Darwin:
		return filepath.Join(home, "Library", "Application Support", AppName)
	case Windows:
		base := getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppName)
	default:
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		return filepath.Join(home, ".config", AppName)
	}
}
