package gridnav

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FeatureCollection represents a GeoJSON FeatureCollection
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(geom *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}
}

func rawCoords(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// PointGeometry converts a point to a GeoJSON Point
func PointGeometry(p orb.Point) *Geometry {
	return &Geometry{Type: GeometryPoint, Coordinates: rawCoords([2]float64{p[0], p[1]})}
}

// LineStringGeometry converts a line string to a GeoJSON LineString
func LineStringGeometry(ls orb.LineString) *Geometry {
	coords := make([][2]float64, len(ls))
	for i, p := range ls {
		coords[i] = [2]float64{p[0], p[1]}
	}
	return &Geometry{Type: GeometryLineString, Coordinates: rawCoords(coords)}
}

// BoundGeometry converts a box to a closed GeoJSON Polygon
func BoundGeometry(b orb.Bound) *Geometry {
	ring := b.ToRing()
	coords := make([][2]float64, len(ring))
	for i, p := range ring {
		coords[i] = [2]float64{p[0], p[1]}
	}
	return &Geometry{Type: GeometryPolygon, Coordinates: rawCoords([][][2]float64{coords})}
}

// TraceFeatureCollection exports the course, obstacles, driven path and
// current pose. Coordinates are course centimetres.
func TraceFeatureCollection(course *CourseLayout, trace orb.LineString, pose Pose) *FeatureCollection {
	fc := NewFeatureCollection()
	if course != nil {
		fc.AddFeature(NewFeature(BoundGeometry(course.Bound), map[string]interface{}{
			"kind":     "course",
			"tileSize": course.TileSize,
		}))
		for i, o := range course.Obstacles {
			fc.AddFeature(NewFeature(BoundGeometry(o.Bound()), map[string]interface{}{
				"kind":   "obstacle",
				"index":  i,
				"height": o.Height,
			}))
		}
	}
	if len(trace) > 1 {
		fc.AddFeature(NewFeature(LineStringGeometry(trace), map[string]interface{}{
			"kind":   "trace",
			"points": len(trace),
		}))
	}
	fc.AddFeature(NewFeature(PointGeometry(orb.Point{pose.X, pose.Y}), map[string]interface{}{
		"kind":  "pose",
		"theta": pose.Theta,
	}))
	return fc
}
