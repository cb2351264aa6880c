package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hexlink.local/internal/platform/metrics"
)

// Mode selects how Shorten keeps identifiers unique.
type Mode int

const (
	// ModeSnapshot reads every stored identifier, generates one outside that
	// set and inserts it. A concurrent writer that wins the race makes the
	// insert fail with ErrDuplicateIdentifier, which is reported as a
	// storage failure.
	ModeSnapshot Mode = iota
	// ModeInsertRetry skips the read and lets the insert decide: a duplicate
	// draws a fresh identifier and tries again, up to MaxAttempts times.
	ModeInsertRetry
)

// ParseMode maps a config value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "insert-retry":
		return ModeInsertRetry, nil
	case "snapshot":
		return ModeSnapshot, nil
	default:
		return 0, fmt.Errorf("unknown shorten mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeInsertRetry {
		return "insert-retry"
	}
	return "snapshot"
}

type Options struct {
	DomainPrefix string
	Mode         Mode
	Generator    *Generator
}

// Service creates and resolves short links. It keeps no state between calls
// and is safe for concurrent use.
type Service struct {
	store  LinkStore
	reader LinkReader
	prefix string
	mode   Mode
	gen    *Generator
}

// NewService wires a store into the service. reader may be nil when only
// Shorten is needed.
func NewService(store LinkStore, reader LinkReader, opts Options) *Service {
	gen := opts.Generator
	if gen == nil {
		gen = NewGenerator()
	}
	return &Service{
		store:  store,
		reader: reader,
		prefix: opts.DomainPrefix,
		mode:   opts.Mode,
		gen:    gen,
	}
}

// Shorten validates raw and stores it under a fresh identifier. Failures are
// *Error values matching ErrInvalidURL or ErrStorageFailure.
func (s *Service) Shorten(ctx context.Context, raw string) (ShortLink, error) {
	url := Normalize(raw)
	if !Validate(url) {
		metrics.ShortenFailures.WithLabelValues(KindInvalidURL.String()).Inc()
		return ShortLink{}, invalidURL()
	}

	var (
		id  string
		err error
	)
	if s.mode == ModeInsertRetry {
		id, err = s.insertWithRetry(ctx, url)
	} else {
		id, err = s.insertFromSnapshot(ctx, url)
	}
	if err != nil {
		slog.Error("shorten failed", "kind", KindStorageFailure.String(), "url", url, "mode", s.mode.String(), "cause", err)
		metrics.ShortenFailures.WithLabelValues(KindStorageFailure.String()).Inc()
		return ShortLink{}, storageFailure("Shortened link couldn't be generated.", err)
	}

	metrics.LinksCreated.Inc()
	slog.Debug("link created", "id", id, "url", url)
	return ShortLink{
		ID:       id,
		URL:      url,
		ShortURL: s.prefix + id,
	}, nil
}

func (s *Service) insertFromSnapshot(ctx context.Context, url string) (string, error) {
	existing, err := s.store.ListIdentifiers(ctx)
	if err != nil {
		return "", err
	}
	id, err := s.gen.Generate(existing)
	if err != nil {
		return "", err
	}
	if err := s.store.Insert(ctx, id, url); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) insertWithRetry(ctx context.Context, url string) (string, error) {
	tried := make(map[string]struct{})
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		id, err := s.gen.Draw()
		if err != nil {
			return "", err
		}
		if _, seen := tried[id]; seen {
			continue
		}
		err = s.store.Insert(ctx, id, url)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDuplicateIdentifier) {
			return "", err
		}
		tried[id] = struct{}{}
		slog.Debug("identifier taken, retrying", "id", id, "attempt", attempt+1)
	}
	return "", ErrGenerationExhausted
}

// Resolve returns the link stored under id. Unknown or malformed ids give
// ErrNotFound.
func (s *Service) Resolve(ctx context.Context, id string) (Link, error) {
	if !ValidID(id) {
		return Link{}, ErrNotFound
	}
	if s.reader == nil {
		return Link{}, storageFailure("Link couldn't be resolved.", errors.New("no reader configured"))
	}
	link, err := s.reader.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Link{}, ErrNotFound
		}
		slog.Error("resolve failed", "kind", KindStorageFailure.String(), "id", id, "cause", err)
		return Link{}, storageFailure("Link couldn't be resolved.", err)
	}
	return link, nil
}

// ShortURL composes the public short link for id.
func (s *Service) ShortURL(id string) string {
	return s.prefix + id
}
