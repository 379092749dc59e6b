// Package cache owns the on-disk page cache. Each successful update is unpacked
// into its own directory under <root>/versions and published by atomically
// replacing the <root>/CURRENT pointer file (temp file + rename), so readers
// either see the previous complete version or the new complete version, never
// a mix. The last-update timestamp lives inside the version directory and is
// swapped together with the pages. Path semantics (language/platform/command)
// are owned by the resolver package; this package only reads and writes
// slash-separated relative paths.
package cache
