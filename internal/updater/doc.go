// Package updater decides when the page cache is stale and performs explicit
// updates (fetch, unpack, replace). Updates are never triggered by a plain
// lookup. A failed fetch or unpack leaves the previous cache untouched and is
// reported as an *UpdateError; storage failures propagate unchanged.
package updater
