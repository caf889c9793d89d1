package radar

import (
	"encoding/json"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

// NewPoint validates and builds a Point.
func NewPoint(lat, lon float64) (Point, error) {
	p := Point{Latitude: lat, Longitude: lon}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate rejects NaN/Inf and out of range coordinates.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return InvalidArgument("latitude %v out of range [-90,90]", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return InvalidArgument("longitude %v out of range [-180,180]", p.Longitude)
	}
	return nil
}

// geoJSONPoint is the wire form: coordinates are [lon, lat].
type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{
		Type:        "Point",
		Coordinates: [2]float64{p.Longitude, p.Latitude},
	})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "" && g.Type != "Point" {
		return InvalidArgument("unsupported geometry type %q", g.Type)
	}
	p.Longitude, p.Latitude = g.Coordinates[0], g.Coordinates[1]
	return nil
}

// Distance returns the haversine great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadiusFromDeltas derives a search radius from a visible map region: the distance from the
// center to a corner of the latitudeDelta x longitudeDelta box.
func RadiusFromDeltas(center Point, latDelta, lonDelta float64) float64 {
	corner := Point{
		Latitude:  clamp(center.Latitude+math.Abs(latDelta)/2, -90, 90),
		Longitude: center.Longitude + math.Abs(lonDelta)/2,
	}
	return Distance(center, corner)
}

// BoundingBox returns a lat/lon box that contains every point within radiusMeters of center.
// ok is false when the box would wrap the antimeridian or reach a pole, in which case callers
// should not filter on longitude.
func BoundingBox(center Point, radiusMeters float64) (minLat, maxLat, minLon, maxLon float64, ok bool) {
	latDelta := radiusMeters / EarthRadiusMeters * 180 / math.Pi
	minLat = center.Latitude - latDelta
	maxLat = center.Latitude + latDelta
	if minLat <= -90 || maxLat >= 90 {
		return math.Max(minLat, -90), math.Min(maxLat, 90), -180, 180, false
	}

	// Widest longitude span is at the latitude farthest from the equator.
	widest := math.Max(math.Abs(minLat), math.Abs(maxLat))
	lonDelta := latDelta / math.Cos(toRadians(widest))
	minLon = center.Longitude - lonDelta
	maxLon = center.Longitude + lonDelta
	if minLon < -180 || maxLon > 180 {
		return minLat, maxLat, -180, 180, false
	}
	return minLat, maxLat, minLon, maxLon, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
