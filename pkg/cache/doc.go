// SPDX-License-Identifier: MPL-2.0

// Package cache implements the content-addressed download cache.
//
// Every artifact is stored once, in a flat directory, under the name
// <sha256-hex><extension>. The file name is the index: there is no database
// and no eviction. Entries are verified each time they are used; an entry
// whose contents no longer hash to its name is deleted and fetched again.
// Downloads land in a temporary file and are renamed into place only after
// they verify, so a failed or corrupt transfer never looks like a valid entry.
package cache
