package cache

import "errors"

var (
	ErrNoFetcher = errors.New("no fetcher registered for key kind")
	ErrClosed    = errors.New("cache store closed")
)
