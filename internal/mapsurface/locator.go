package mapsurface

import (
	"context"
	"time"

	"ridetrack/internal/model"
)

// PositionOptions mirrors the hints a geolocation provider accepts.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Locator answers a one-shot "where am I" query.
type Locator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (model.LatLng, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, opts PositionOptions) (model.LatLng, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context, opts PositionOptions) (model.LatLng, error) {
	return f(ctx, opts)
}

// StaticLocator always reports the same position.
type StaticLocator model.LatLng

func (s StaticLocator) CurrentPosition(ctx context.Context, _ PositionOptions) (model.LatLng, error) {
	if err := ctx.Err(); err != nil {
		return model.LatLng{}, err
	}
	return model.LatLng(s), nil
}
