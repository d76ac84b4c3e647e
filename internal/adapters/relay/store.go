// Package relay adapts remote relays to the feed store contract.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/feed"
	"github.com/okian/loopfeed/pkg/logger"
)

// Conn is the part of a relay connection the store uses.
type Conn interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Close() error
}

// Dialer opens a connection to a relay URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

func dialRelay(ctx context.Context, url string) (Conn, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Store fans queries out to every configured relay and merges the answers.
type Store struct {
	urls      []string
	rankHints bool
	dial      Dialer
	log       logger.Logger

	mu    sync.Mutex
	conns map[string]Conn
}

// NewStore creates a store over urls. Connections are opened lazily.
func NewStore(urls []string, opts ...Option) (*Store, error) {
	if len(urls) == 0 {
		return nil, ErrNoRelays
	}
	s := &Store{
		urls:  append([]string(nil), urls...),
		dial:  dialRelay,
		log:   logger.Named("relay"),
		conns: make(map[string]Conn, len(urls)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SupportsRankHints implements feed.Store.
func (s *Store) SupportsRankHints() bool { return s.rankHints }

// Query implements feed.Store. It fails only when every relay fails. A relay
// that refuses a rank hint makes the query fail with feed.ErrRankUnsupported
// unless another relay answered. Hinted answers from more than one relay
// cannot be merged into a single ranked order, so they also fail with
// feed.ErrRankUnsupported and the caller ranks a plain query itself.
func (s *Store) Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error) {
	type answer struct {
		url    string
		events []*nostr.Event
		err    error
	}
	answers := make(chan answer, len(s.urls))
	for _, url := range s.urls {
		go func(url string) {
			events, err := s.queryRelay(ctx, url, filters)
			answers <- answer{url: url, events: events, err: err}
		}(url)
	}

	var (
		out      []*nostr.Event
		seen     = make(map[string]struct{})
		errs     []error
		ok       bool
		answered int
	)
	for range s.urls {
		a := <-answers
		if a.err != nil {
			s.log.Warn(ctx, "relay query failed", logger.String("relay", a.url), logger.Error(a.err))
			errs = append(errs, fmt.Errorf("%s: %w", a.url, a.err))
			continue
		}
		ok = true
		if len(a.events) > 0 {
			answered++
		}
		for _, ev := range a.events {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrAllRelaysFailed, errors.Join(errs...))
	}
	if answered > 1 && hinted(filters) {
		s.log.Debug(ctx, "ranked answers from several relays, dropping order", logger.Int("relays", answered))
		return nil, fmt.Errorf("%w: %d relays answered a ranked query", feed.ErrRankUnsupported, answered)
	}
	return out, nil
}

func hinted(filters []nostr.Filter) bool {
	for _, f := range filters {
		if f.Search != "" {
			return true
		}
	}
	return false
}

func (s *Store) queryRelay(ctx context.Context, url string, filters []nostr.Filter) ([]*nostr.Event, error) {
	conn, err := s.conn(ctx, url)
	if err != nil {
		return nil, err
	}
	var out []*nostr.Event
	for _, f := range filters {
		events, err := conn.QuerySync(ctx, f)
		if err != nil {
			if f.Search != "" && isUnsupported(err) {
				return nil, fmt.Errorf("%w: %w", feed.ErrRankUnsupported, err)
			}
			s.drop(url, conn)
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (s *Store) conn(ctx context.Context, url string) (Conn, error) {
	s.mu.Lock()
	c, ok := s.conns[url]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := s.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conns[url]; ok {
		_ = c.Close()
		return existing, nil
	}
	s.conns[url] = c
	return c, nil
}

// drop forgets a connection after a transport error so the next query redials.
func (s *Store) drop(url string, c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[url] == c {
		delete(s.conns, url)
		_ = c.Close()
	}
}

// Close closes every open connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for url, c := range s.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
		delete(s.conns, url)
	}
	return errors.Join(errs...)
}

func isUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unsupported") || strings.Contains(msg, "not supported")
}
