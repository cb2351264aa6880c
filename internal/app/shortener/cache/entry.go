package cache

import "hexlink.local/internal/app/shortener"

// Entry is one cached resolve result. Missing marks a negative entry: the id
// is known not to exist.
type Entry struct {
	Link    shortener.Link
	Missing bool
}

func missing(id string) Entry {
	return Entry{Link: shortener.Link{ID: id}, Missing: true}
}
