package model

import (
    "encoding/json"
    "errors"
    "fmt"
    "math"
)

// Core domain types shared by the directory, map surface, tracker and API.

// LatLng is a latitude/longitude pair.
type LatLng struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// Route is a predefined trip as listed by the upstream GET /routes endpoint.
type Route struct {
    ID            string `json:"_id"`
    Title         string `json:"title"`
    StartPosition LatLng `json:"startPosition"`
    EndPosition   LatLng `json:"endPosition"`
}

// Point is the wire form of a position: [lat, lng].
type Point [2]float64

func (p Point) LatLng() LatLng { return LatLng{Lat: p[0], Lng: p[1]} }

// ErrBadPoint is returned when a position is not exactly two finite numbers.
var ErrBadPoint = errors.New("position must be [lat, lng]")

func (p *Point) UnmarshalJSON(b []byte) error {
    var xs []float64
    if err := json.Unmarshal(b, &xs); err != nil { return fmt.Errorf("%w: %v", ErrBadPoint, err) }
    if len(xs) != 2 { return fmt.Errorf("%w: got %d values", ErrBadPoint, len(xs)) }
    for _, x := range xs {
        if math.IsNaN(x) || math.IsInf(x, 0) { return ErrBadPoint }
    }
    p[0], p[1] = xs[0], xs[1]
    return nil
}

// PositionEvent is the inbound new-position payload.
type PositionEvent struct {
    RouteID  string `json:"routeId"`
    Position Point  `json:"position"`
    Finished bool   `json:"finished"`
}

// DirectionEvent is the outbound new-direction payload.
type DirectionEvent struct {
    RouteID string `json:"routeId"`
}

// Realtime event names.
const (
    EventNewPosition  = "new-position"
    EventNewDirection = "new-direction"
)

// Variant is the visual flavour of a notice.
type Variant string

const (
    VariantDefault Variant = "default"
    VariantSuccess Variant = "success"
    VariantWarning Variant = "warning"
    VariantError   Variant = "error"
    VariantInfo    Variant = "info"
)

// Notice is a transient user-visible message.
type Notice struct {
    ID      string  `json:"id"`
    Message string  `json:"message"`
    Variant Variant `json:"variant"`
    RouteID string  `json:"routeId,omitempty"`
    TS      string  `json:"ts"`
}

// IconKind selects the marker glyph.
type IconKind string

const (
    IconCar IconKind = "car"
    IconPin IconKind = "pin"
)

type Icon struct {
    Kind  IconKind `json:"kind"`
    Color string   `json:"color"`
}

// MarkerRole distinguishes the moving marker from the destination marker.
type MarkerRole string

const (
    RoleCurrent MarkerRole = "current"
    RoleEnd     MarkerRole = "end"
)

// MarkerOptions describes a marker before it is placed on the surface.
type MarkerOptions struct {
    Position LatLng `json:"position"`
    Icon     Icon   `json:"icon"`
}

// Marker is a placed marker.
type Marker struct {
    ID       string     `json:"id"`
    RouteID  string     `json:"routeId"`
    Role     MarkerRole `json:"role"`
    Position LatLng     `json:"position"`
    Icon     Icon       `json:"icon"`
}

// MapView is the camera of the surface.
type MapView struct {
    Center LatLng `json:"center"`
    Zoom   int    `json:"zoom"`
}

// Session is the read model of an active tracking session.
type Session struct {
    RouteID         string `json:"routeId"`
    Title           string `json:"title,omitempty"`
    Color           string `json:"color"`
    CurrentMarkerID string `json:"currentMarkerId"`
    EndMarkerID     string `json:"endMarkerId"`
    Position        LatLng `json:"position"`
    Updates         int    `json:"updates"`
    StartedAt       string `json:"startedAt"`
}
