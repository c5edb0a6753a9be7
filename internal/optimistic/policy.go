package optimistic

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type Policy string

const (
	// PolicySerialize runs one mutation per scope at a time; the next
	// one snapshots only after the previous one has reconciled.
	PolicySerialize Policy = "serialize"
	// PolicyCompose lets speculative writes stack. A rollback restores
	// the snapshot of the failing mutation, so the last restore wins
	// until the refetch lands.
	PolicyCompose Policy = "compose"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicySerialize:
		return PolicySerialize, nil
	case PolicyCompose:
		return PolicyCompose, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// scopeLock is a context-aware mutex shared by the mutations of one scope.
type scopeLock struct {
	sem  chan struct{}
	refs int
}

type scopes struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

func newScopes() *scopes {
	return &scopes{locks: make(map[string]*scopeLock)}
}

// acquire waits for the scope and returns its release func.
func (s *scopes) acquire(ctx context.Context, scope string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[scope]
	if !ok {
		l = &scopeLock{sem: make(chan struct{}, 1)}
		s.locks[scope] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			s.drop(scope, l)
		}, nil
	case <-ctx.Done():
		s.drop(scope, l)
		return nil, ctx.Err()
	}
}

func (s *scopes) drop(scope string, l *scopeLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, scope)
	}
}
