// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// windowsReserved are device names Windows refuses as file names, with or
// without an extension.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name, ignoring case and extension,
// is a Windows device name.
func IsWindowsReservedName(name string) bool {
	base, _, _ := strings.Cut(strings.ToUpper(name), ".")
	return windowsReserved[base]
}

// ValidName reports whether name can be used as a single path segment on p.
// Only Windows restricts names beyond the path separator.
func (p Platform) ValidName(name string) bool {
	if name == "" || strings.ContainsRune(name, '/') {
		return false
	}
	if p != Windows {
		return true
	}
	return !IsWindowsReservedName(name) && !strings.ContainsAny(name, `\:*?"<>|`) && !strings.HasSuffix(name, ".")
}
