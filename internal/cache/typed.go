package cache

import (
	"context"
	"fmt"
)

// GetAs reads key as T. A value of another type reads as absent.
func GetAs[T any](s *Store, key Key) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Patch applies fn to the cached T. Absent keys and values of another
// type are left alone.
func Patch[T any](s *Store, key Key, fn func(T) (T, bool)) bool {
	return s.Update(key, func(old any, ok bool) (any, bool) {
		if !ok {
			return nil, false
		}
		typed, ok := old.(T)
		if !ok {
			return nil, false
		}
		return fn(typed)
	})
}

// FetchAs is Fetch with a type check on the result. A nil result is
// returned as the zero T.
func FetchAs[T any](ctx context.Context, s *Store, key Key) (T, error) {
	var zero T
	v, err := s.Fetch(ctx, key)
	if err != nil || v == nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected cached type %T", key, v)
	}
	return typed, nil
}
