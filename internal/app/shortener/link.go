package shortener

import (
	"context"
	"errors"
	"time"
)

// Link 是持久化的短链记录（identifier -> original url）。
//
// 记录只在创建时写入一次，之后不会被修改。
type Link struct {
	ID        string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShortLink is what a successful Shorten call hands back to the caller.
type ShortLink struct {
	ID       string
	URL      string // normalized original url
	ShortURL string // domain prefix + ID
}

// LinkStore is the narrow storage capability the service needs.
//
// Implementations must make each call atomic with respect to concurrent
// callers and must reject an Insert whose id already exists with
// ErrDuplicateIdentifier instead of overwriting.
type LinkStore interface {
	ListIdentifiers(ctx context.Context) (map[string]struct{}, error)
	Insert(ctx context.Context, id string, url string) error
}

// LinkReader resolves an identifier back to its stored link.
type LinkReader interface {
	Lookup(ctx context.Context, id string) (Link, error)
}

// Store-level errors. Backends wrap their driver error together with one of
// these so callers can classify with errors.Is.
var (
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrNotFound            = errors.New("link not found")
	// ErrLockTimeout is reported when a backend could not acquire its lock in
	// time. It is a kind of ErrStoreUnavailable.
	ErrLockTimeout = &lockTimeoutError{}
)

type lockTimeoutError struct{}

func (*lockTimeoutError) Error() string { return "lock timeout" }

func (*lockTimeoutError) Is(target error) bool { return target == ErrStoreUnavailable }
