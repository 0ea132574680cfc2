package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var errLoaderRequired = errors.New("cache: loader required")

// Cache stores derived read models (dashboard stats, report snapshots) as
// JSON. Bump invalidates everything written before it.
type Cache interface {
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// Noop always calls the loader.
type Noop struct{}

func (Noop) FetchJSON(ctx context.Context, _ string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errLoaderRequired
	}
	return load(ctx, dest, loader)
}

func (Noop) Bump(_ context.Context) error {
	return nil
}

func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	return roundTrip(value, dest)
}

func roundTrip(value any, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
