// Package geo converts the coordinate arrays of a fit result into map
// overlays.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

// Polyline builds a line from [lat, lng] pairs. orb stores points as
// [lng, lat].
func Polyline(latlng [][2]float64) orb.LineString {
	ls := make(orb.LineString, len(latlng))
	for i, p := range latlng {
		ls[i] = orb.Point{p[1], p[0]}
	}
	return ls
}

// MapPath lists the vertices of ls as map coordinates.
func MapPath(ls orb.LineString) []models.LatLng {
	path := make([]models.LatLng, len(ls))
	for i, p := range ls {
		path[i] = models.LatLng{Lat: p.Lat(), Lng: p.Lon()}
	}
	return path
}

// Centre is the centre of the bounding box of ls. The second return value
// is false for an empty line.
func Centre(ls orb.LineString) (models.LatLng, bool) {
	if len(ls) == 0 {
		return models.LatLng{}, false
	}
	c := ls.Bound().Center()
	return models.LatLng{Lat: c.Lat(), Lng: c.Lon()}, true
}

// Length is the geodesic length of ls in metres.
func Length(ls orb.LineString) float64 {
	if len(ls) < 2 {
		return 0
	}
	return geo.Length(ls)
}
