// Package timecomponents provides derived variables that encode parts of a
// timestamp cyclically, as the sine or cosine of their phase.
package timecomponents

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var params = []registry.Param{
	{Name: "time", Kind: registry.Field},
	{Name: "component", Kind: registry.Literal, Type: cty.String},
}

// Register registers the functions with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction(&registry.Function{
		Name:   "time_components.hour_of_day",
		Params: params,
		Attrs:  map[string]string{"units": "1"},
		Fn:     HourOfDay,
	})
	r.RegisterFunction(&registry.Function{
		Name:   "time_components.day_of_year",
		Params: params,
		Attrs:  map[string]string{"units": "1"},
		Fn:     DayOfYear,
	})
}

// HourOfDay encodes the hour of day over a 24 hour period.
func HourOfDay(ctx context.Context, args *registry.Args) (*dataset.Variable, error) {
	ctxlog.FromContext(ctx).Info("Calculating hour of day")
	return encode(args, "hour of day", 24, func(t time.Time) int { return t.Hour() })
}

// DayOfYear encodes the day of year over 366 days, so that leap years fit.
func DayOfYear(ctx context.Context, args *registry.Args) (*dataset.Variable, error) {
	ctxlog.FromContext(ctx).Info("Calculating day of year")
	return encode(args, "day of year", 366, func(t time.Time) int { return t.YearDay() })
}

func encode(args *registry.Args, what string, period float64, part func(time.Time) int) (*dataset.Variable, error) {
	component, err := args.String("component")
	if err != nil {
		return nil, err
	}
	var wave func(float64) float64
	switch component {
	case "sin":
		wave = math.Sin
	case "cos":
		wave = math.Cos
	default:
		return nil, fmt.Errorf("invalid value of component: %q, expected one of: 'cos' or 'sin'", component)
	}

	times, err := args.Times("time")
	if err != nil {
		return nil, err
	}
	src := args.Field("time")
	out := src.Clone()
	for i, t := range times {
		out.Data[i] = wave(float64(part(t)) / period * 2 * math.Pi)
	}
	out.Name = strings.ReplaceAll(what, " ", "_") + "_" + component
	out.Attrs = map[string]string{
		"units":     "1",
		"long_name": fmt.Sprintf("%s component of cyclically encoded %s", strings.ToUpper(component[:1])+component[1:], what),
	}
	return out, nil
}
