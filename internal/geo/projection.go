package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/ukydev/fleet-portal/internal/models"
)

// Window selects which spend aggregate weights the map overlay.
type Window string

const (
	WindowToday Window = "today"
	Window7d    Window = "7d"
	Window30d   Window = "30d"
)

// Layer is the representation the map widget should draw.
type Layer string

const (
	LayerHeat    Layer = "heat"
	LayerMarkers Layer = "markers"
)

// WeightProperty is the feature property carrying the selected spend value.
const WeightProperty = "spend"

// ParseWindow converts a query value into a Window. An empty value selects today.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "":
		return WindowToday, nil
	case WindowToday, Window7d, Window30d:
		return Window(s), nil
	default:
		return "", fmt.Errorf("unknown spend window %q", s)
	}
}

// ParseLayer converts a query value into a Layer. An empty value selects markers.
func ParseLayer(s string) (Layer, error) {
	switch Layer(s) {
	case "":
		return LayerMarkers, nil
	case LayerHeat, LayerMarkers:
		return Layer(s), nil
	default:
		return "", fmt.Errorf("unknown map layer %q", s)
	}
}

// SpendFor returns the aggregate selected by w.
func SpendFor(s models.Spend, w Window) float64 {
	switch w {
	case Window7d:
		return s.Last7Days
	case Window30d:
		return s.Last30Days
	default:
		return s.Today
	}
}

// Project builds one point feature per vehicle, in input order, weighted by
// the spend aggregate for w.
func Project(vehicles []models.Vehicle, w Window) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, v := range vehicles {
		f := geojson.NewFeature(orb.Point{v.CurrentLocation.Lon, v.CurrentLocation.Lat})
		f.ID = v.ID
		f.Properties["id"] = v.ID
		f.Properties["plate"] = v.Plate
		f.Properties["driver"] = v.Driver
		f.Properties[WeightProperty] = SpendFor(v.Spend, w)
		fc.Append(f)
	}
	return fc
}
