package leaflet

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/diwise/api-waterbodymap/internal/pkg/application/mapview"
)

func f(v float64) *float64 {
	return &v
}

func lakes() []mapview.Record {
	return []mapview.Record{
		{Name: "Lake A", Latitude: f(40), Longitude: f(-80)},
		{Name: "Lake B", Latitude: nil, Longitude: f(-70)},
		{Name: "Lake C", Latitude: f(0), Longitude: f(10)},
	}
}

func TestInitializePlacesMarkers(t *testing.T) {
	is := is.New(t)

	m, err := NewService().Initialize(Surface("map"), lakes())
	is.NoErr(err)

	is.Equal(m.Surface, "map")
	is.Equal(m.Center, mapview.DefaultCenter)
	is.Equal(m.Zoom, mapview.DefaultZoom)
	is.Equal(len(m.TileLayers), 1)
	is.Equal(len(m.Markers), 1)
	is.Equal(m.Markers[0].Position, mapview.LatLng{Lat: 40, Lng: -80})
	is.Equal(m.Markers[0].Popup, "<strong>Lake A</strong>")
}

func TestThatEmptySurfaceIsRejected(t *testing.T) {
	is := is.New(t)

	_, err := NewService().Initialize(Surface("  "), lakes())
	is.True(errors.Is(err, ErrNoSurface))
}

func TestGeoJSONExport(t *testing.T) {
	is := is.New(t)

	m, err := NewService().Initialize(Surface("map"), lakes(), mapview.WithPlacementPolicy(mapview.Present))
	is.NoErr(err)

	b, err := m.GeoJSON()
	is.NoErr(err)

	fc, err := geojson.UnmarshalFeatureCollection(b)
	is.NoErr(err)
	is.Equal(len(fc.Features), 2)

	pt, ok := fc.Features[0].Geometry.(orb.Point)
	is.True(ok)
	is.Equal(pt.Lon(), -80.0)
	is.Equal(pt.Lat(), 40.0)
	is.Equal(fc.Features[0].Properties.MustString("popup"), "<strong>Lake A</strong>")

	pt, ok = fc.Features[1].Geometry.(orb.Point)
	is.True(ok)
	is.Equal(pt.Lat(), 0.0)
}

func TestGeoJSONOfEmptyMap(t *testing.T) {
	is := is.New(t)

	m, err := NewService().Initialize(Surface("map"), nil)
	is.NoErr(err)

	b, err := m.GeoJSON()
	is.NoErr(err)

	fc, err := geojson.UnmarshalFeatureCollection(b)
	is.NoErr(err)
	is.Equal(len(fc.Features), 0)
}

func TestRenderPage(t *testing.T) {
	is := is.New(t)

	m, err := NewService().Initialize(Surface("map"), lakes())
	is.NoErr(err)

	buf := &bytes.Buffer{}
	err = Render(buf, Page{
		Title: "Water bodies",
		Stats: []Stat{{Label: "Active water bodies", Value: 3}},
		Map:   m,
	})
	is.NoErr(err)

	page := buf.String()
	is.True(strings.Contains(page, `<div id="map" class="map"></div>`))
	is.True(strings.Contains(page, LeafletJS))
	is.True(strings.Contains(page, "L.map(doc.surface)"))
	is.True(strings.Contains(page, "Lake A"))
	is.True(!strings.Contains(page, "Lake B"))
	is.True(strings.Contains(page, "Active water bodies"))
}

func TestRenderPageWithAlerts(t *testing.T) {
	is := is.New(t)

	m, err := NewService().Initialize(Surface("map"), lakes())
	is.NoErr(err)

	buf := &bytes.Buffer{}
	err = Render(buf, Page{
		Title:  "Water bodies",
		Map:    m,
		Alerts: []Alert{{Heading: "Lake <A>", Details: []string{"High turbidity: 12 NTU"}}},
	})
	is.NoErr(err)

	page := buf.String()
	is.True(strings.Contains(page, "Recent alerts"))
	is.True(strings.Contains(page, "<strong>Lake &lt;A&gt;</strong>"))
	is.True(strings.Contains(page, "<span>High turbidity: 12 NTU</span>"))

	buf.Reset()
	is.NoErr(Render(buf, Page{Title: "Water bodies", Map: m}))
	is.True(!strings.Contains(buf.String(), "Recent alerts"))
}

func TestRenderWithoutMapFails(t *testing.T) {
	is := is.New(t)

	err := Render(&bytes.Buffer{}, Page{Title: "nothing"})
	is.True(err != nil)
}
