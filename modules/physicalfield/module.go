// Package physicalfield provides derived variables computed from physical
// relations: analytical functions of coordinates, such as top-of-atmosphere
// radiation, and combinations of other fields, such as wind speed.
package physicalfield

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/registry"
)

// SolarConstant is the mean incoming solar irradiance, in W*m**-2.
const SolarConstant = 1366.0

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the functions with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction(&registry.Function{
		Name: "physical_field.toa_radiation",
		Params: []registry.Param{
			{Name: "lat", Kind: registry.Field},
			{Name: "lon", Kind: registry.Field},
			{Name: "time", Kind: registry.Field},
		},
		Attrs: map[string]string{"units": "W*m**-2", "long_name": "top-of-atmosphere incoming radiation"},
		Fn:    TOARadiation,
	})
	r.RegisterFunction(&registry.Function{
		Name: "physical_field.wind_speed",
		Params: []registry.Param{
			{Name: "u", Kind: registry.Field},
			{Name: "v", Kind: registry.Field},
		},
		Attrs: map[string]string{"long_name": "wind speed"},
		Fn:    WindSpeed,
	})
}

// TOARadiation computes incoming radiation at the top of the atmosphere
// from latitude and longitude in degrees and UTC time. The hour is taken
// whole. Negative values, i.e. night, are clipped to zero.
func TOARadiation(ctx context.Context, args *registry.Args) (*dataset.Variable, error) {
	ctxlog.FromContext(ctx).Info("Calculating top-of-atmosphere incoming radiation")

	times, err := args.Times("time")
	if err != nil {
		return nil, err
	}
	hour := args.Field("time").Clone()
	day := args.Field("time").Clone()
	for i, t := range times {
		hour.Data[i] = float64(t.Hour())
		day.Data[i] = float64(t.YearDay())
	}

	aligned, err := dataset.Align(args.Field("lat"), args.Field("lon"), hour, day)
	if err != nil {
		return nil, fmt.Errorf("toa_radiation: %w", err)
	}
	lat, lon, h, d := aligned[0], aligned[1], aligned[2], aligned[3]

	out := lat.Clone()
	for i := range out.Data {
		// Cooper's approximation of the solar declination
		dec := math.Pi / 180 * 23.45 * math.Sin(2*math.Pi*(284+d.Data[i])/365)
		solarTime := h.Data[i] + lon.Data[i]/15
		hourAngle := 15 * (solarTime - 12)
		phi := lat.Data[i] * math.Pi / 180
		cosSZA := math.Sin(phi)*math.Sin(dec) + math.Cos(phi)*math.Cos(dec)*math.Cos(hourAngle*math.Pi/180)
		out.Data[i] = math.Max(0, SolarConstant*cosSZA)
	}
	out.Name = "toa_radiation"
	out.Attrs = map[string]string{"units": "W*m**-2", "long_name": "top-of-atmosphere incoming radiation"}
	return out, nil
}

// WindSpeed is the magnitude of the horizontal wind, sqrt(u² + v²). The
// result keeps the units of u.
func WindSpeed(ctx context.Context, args *registry.Args) (*dataset.Variable, error) {
	ctxlog.FromContext(ctx).Info("Calculating wind speed")

	u, v := args.Field("u"), args.Field("v")
	if uu, vu := u.Attrs["units"], v.Attrs["units"]; uu != vu {
		return nil, fmt.Errorf("wind_speed: u is in %q but v is in %q", uu, vu)
	}
	aligned, err := dataset.Align(u, v)
	if err != nil {
		return nil, fmt.Errorf("wind_speed: %w", err)
	}
	out := aligned[0].Clone()
	for i := range out.Data {
		out.Data[i] = math.Hypot(aligned[0].Data[i], aligned[1].Data[i])
	}
	out.Name = "wind_speed"
	out.Attrs = map[string]string{"long_name": "wind speed"}
	if units, ok := u.Attrs["units"]; ok {
		out.Attrs["units"] = units
	}
	return out, nil
}
