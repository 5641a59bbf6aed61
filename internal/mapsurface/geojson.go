package mapsurface

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON renders the snapshot markers as a FeatureCollection of points.
func (snap Snapshot) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range snap.Markers {
		f := geojson.NewFeature(orb.Point{m.Position.Lng, m.Position.Lat})
		f.ID = m.ID
		f.Properties["routeId"] = m.RouteID
		f.Properties["role"] = string(m.Role)
		f.Properties["icon"] = string(m.Icon.Kind)
		f.Properties["color"] = m.Icon.Color
		fc.Append(f)
	}
	return fc
}
