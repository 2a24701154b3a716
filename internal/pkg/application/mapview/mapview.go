package mapview

import (
	"fmt"
	"html"
	"math"

	"github.com/samber/lo"
)

const (
	DefaultZoom        int    = 4
	DefaultTileURL     string = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution string = "&copy; OpenStreetMap contributors"
)

//DefaultCenter is a coordinate roughly in the middle of the contiguous United States
var DefaultCenter = LatLng{Lat: 37, Lng: -95}

//LatLng is a geographic coordinate in decimal degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

//TileLayer describes a raster tile source for the map background. URLTemplate
//uses the {s}, {z}, {x} and {y} placeholders.
type TileLayer struct {
	URLTemplate string `json:"urlTemplate"`
	Attribution string `json:"attribution"`
}

//Surface is a handle to the region of the display that hosts the map
type Surface interface {
	ID() string
}

//Marker is a point annotation that has been added to a map
type Marker interface {
	BindPopup(content string)
}

//Map is a live map instance
type Map interface {
	AddTileLayer(layer TileLayer)
	AddMarker(at LatLng) Marker
}

//MapService creates maps bound to a rendering surface
type MapService interface {
	NewMap(surface Surface, center LatLng, zoom int) (Map, error)
}

//Record is a named water body with optional coordinates
type Record struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

//PlacementPolicy decides if a record gets a marker
type PlacementPolicy func(r Record) bool

//Truthy accepts records whose coordinates are both present, non-zero and finite.
//A coordinate of exactly 0 is rejected even though it is a valid position.
func Truthy(r Record) bool {
	return truthy(r.Latitude) && truthy(r.Longitude)
}

//Present accepts records whose coordinates are both present and finite
func Present(r Record) bool {
	return finite(r.Latitude) && finite(r.Longitude)
}

func truthy(f *float64) bool {
	return finite(f) && *f != 0
}

func finite(f *float64) bool {
	return f != nil && !math.IsNaN(*f) && !math.IsInf(*f, 0)
}

//Options control how InitializeMap sets up the map
type Options struct {
	Center    LatLng
	Zoom      int
	Tiles     TileLayer
	Placeable PlacementPolicy
}

//Option modifies the default Options
type Option func(*Options)

func WithCenter(center LatLng) Option {
	return func(o *Options) {
		o.Center = center
	}
}

func WithZoom(zoom int) Option {
	return func(o *Options) {
		o.Zoom = zoom
	}
}

func WithTileLayer(layer TileLayer) Option {
	return func(o *Options) {
		o.Tiles = layer
	}
}

func WithPlacementPolicy(policy PlacementPolicy) Option {
	return func(o *Options) {
		if policy != nil {
			o.Placeable = policy
		}
	}
}

//DefaultOptions returns a continental overview of North America over OpenStreetMap tiles
func DefaultOptions() Options {
	return Options{
		Center: DefaultCenter,
		Zoom:   DefaultZoom,
		Tiles: TileLayer{
			URLTemplate: DefaultTileURL,
			Attribution: DefaultAttribution,
		},
		Placeable: Truthy,
	}
}

//PopupContent returns the popup label for a record name
func PopupContent(name string) string {
	return "<strong>" + html.EscapeString(name) + "</strong>"
}

//InitializeMap creates a map on surface, attaches a single tile layer and adds one
//marker with a name popup for every placeable record. Records that are not placeable
//are skipped without error.
func InitializeMap(svc MapService, surface Surface, records []Record, opts ...Option) (Map, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m, err := svc.NewMap(surface, o.Center, o.Zoom)
	if err != nil {
		return nil, fmt.Errorf("failed to create map: %w", err)
	}

	m.AddTileLayer(o.Tiles)

	for _, r := range records {
		if !o.Placeable(r) {
			continue
		}

		marker := m.AddMarker(LatLng{Lat: *r.Latitude, Lng: *r.Longitude})
		marker.BindPopup(PopupContent(r.Name))
	}

	return m, nil
}

//CountPlaceable returns the number of records that InitializeMap would place
func CountPlaceable(records []Record, policy PlacementPolicy) int {
	if policy == nil {
		policy = Truthy
	}

	return lo.CountBy(records, func(r Record) bool { return policy(r) })
}
