package leaflet

import (
	"errors"
	"html/template"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/diwise/api-waterbodymap/internal/pkg/application/mapview"
)

const (
	LeafletCSS string = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	LeafletJS  string = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
)

var ErrNoSurface = errors.New("map surface has no id")

//Surface addresses the element that the map is mounted on by its id
type Surface string

func (s Surface) ID() string {
	return string(s)
}

//Marker is a placed marker and the popup bound to it
type Marker struct {
	Position mapview.LatLng `json:"position"`
	Popup    string         `json:"popup"`
}

func (m *Marker) BindPopup(content string) {
	m.Popup = content
}

//Map is a declarative description of a Leaflet map that can be replayed in a browser
type Map struct {
	Surface    string              `json:"surface"`
	Center     mapview.LatLng      `json:"center"`
	Zoom       int                 `json:"zoom"`
	TileLayers []mapview.TileLayer `json:"tileLayers"`
	Markers    []*Marker           `json:"markers"`
}

func (m *Map) AddTileLayer(layer mapview.TileLayer) {
	m.TileLayers = append(m.TileLayers, layer)
}

func (m *Map) AddMarker(at mapview.LatLng) mapview.Marker {
	marker := &Marker{Position: at}
	m.Markers = append(m.Markers, marker)
	return marker
}

//GeoJSON returns the markers as a FeatureCollection of points
func (m *Map) GeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	for _, marker := range m.Markers {
		f := geojson.NewFeature(orb.Point{marker.Position.Lng, marker.Position.Lat})
		f.Properties["popup"] = marker.Popup
		fc.Append(f)
	}

	return fc.MarshalJSON()
}

//Service creates Leaflet maps
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) NewMap(surface mapview.Surface, center mapview.LatLng, zoom int) (mapview.Map, error) {
	if surface == nil || strings.TrimSpace(surface.ID()) == "" {
		return nil, ErrNoSurface
	}

	return &Map{
		Surface:    surface.ID(),
		Center:     center,
		Zoom:       zoom,
		TileLayers: []mapview.TileLayer{},
		Markers:    []*Marker{},
	}, nil
}

//Initialize runs mapview.InitializeMap against this service
func (s *Service) Initialize(surface mapview.Surface, records []mapview.Record, opts ...mapview.Option) (*Map, error) {
	m, err := mapview.InitializeMap(s, surface, records, opts...)
	if err != nil {
		return nil, err
	}
	return m.(*Map), nil
}

//Stat is a labelled number shown above the map
type Stat struct {
	Label string
	Value int
}

//Alert is a listed measurement that broke one or more standards
type Alert struct {
	Heading string
	Details []string
}

//Page is the content of a rendered map page
type Page struct {
	Title  string
	Stats  []Stat
	Map    *Map
	Alerts []Alert
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.CSS}}">
<style>.map { height: 600px; } .stats { display: flex; gap: 2em; } .alerts li span { margin-left: 1em; }</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="stats">{{range .Stats}}
<div class="stat"><span class="value">{{.Value}}</span> <span class="label">{{.Label}}</span></div>{{end}}
</div>
<div id="{{.Map.Surface}}" class="map"></div>
{{if .Alerts}}<h2>Recent alerts</h2>
<ul class="alerts">{{range .Alerts}}
<li><strong>{{.Heading}}</strong>{{range .Details}} <span>{{.}}</span>{{end}}</li>{{end}}
</ul>
{{end}}<script src="{{.JS}}"></script>
<script>
const doc = {{.Map}};
const map = L.map(doc.surface).setView([doc.center.lat, doc.center.lng], doc.zoom);
doc.tileLayers.forEach(layer => {
	L.tileLayer(layer.urlTemplate, { attribution: layer.attribution }).addTo(map);
});
doc.markers.forEach(marker => {
	L.marker([marker.position.lat, marker.position.lng]).addTo(map).bindPopup(marker.popup);
});
</script>
</body>
</html>
`))

//Render writes the page as a standalone HTML document
func Render(w io.Writer, p Page) error {
	if p.Map == nil {
		return errors.New("page has no map to render")
	}

	return pageTemplate.Execute(w, struct {
		Page
		CSS string
		JS  string
	}{p, LeafletCSS, LeafletJS})
}
