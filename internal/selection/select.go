package selection

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vk/dataprep/internal/cftime"
	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/dataset"
	"github.com/vk/dataprep/internal/fault"
	"github.com/zclconf/go-cty/cty"
)

// Select returns a dataset holding only the requested variables, restricted
// along every selected dim. Non-index coordinates spanning the kept dims are
// carried over. A variable requested without selections is returned whole.
//
// A dim has one index per dataset, so every request selecting along the
// same dim must select the same members.
func Select(ctx context.Context, ds *dataset.Dataset, requests []*config.VariableRequest) (*dataset.Dataset, error) {
	logger := ctxlog.FromContext(ctx)

	dimSel := map[string][]int{}
	dimOwner := map[string]string{}
	var dimOrder []string

	for _, req := range requests {
		v, ok := ds.Variable(req.Name)
		if !ok {
			return nil, fault.New(fault.Configuration,
				"variable not found; available variables are %s", strings.Join(ds.VariableNames(), ", ")).WithVariable(req.Name)
		}
		if err := checkVariableUnits(v, req.Units); err != nil {
			return nil, err
		}

		for _, sel := range req.Selections {
			if !v.Has(sel.Dim) {
				return nil, fault.New(fault.Configuration, "variable does not span dim (dims %v)", v.Dims).
					WithVariable(req.Name).WithDim(sel.Dim)
			}
			ix := ds.Index(sel.Dim)
			if err := checkCoordUnits(ix, sel.Units); err != nil {
				return nil, err.WithVariable(req.Name)
			}
			pos, err := positions(ix, sel)
			if err != nil {
				return nil, withVariable(err, req.Name)
			}

			if prev, seen := dimSel[sel.Dim]; seen {
				if !slices.Equal(prev, pos) {
					return nil, fault.New(fault.Configuration,
						"selection differs from the one made for variable %q; all variables of a source must select the same members",
						dimOwner[sel.Dim]).WithVariable(req.Name).WithDim(sel.Dim)
				}
				continue
			}
			dimSel[sel.Dim] = pos
			dimOwner[sel.Dim] = req.Name
			dimOrder = append(dimOrder, sel.Dim)
		}
	}

	out, err := keep(ds, requests)
	if err != nil {
		return nil, err
	}
	for _, dim := range dimOrder {
		var err error
		if out, err = out.Take(dim, dimSel[dim]); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "selection failed").WithDim(dim)
		}
		logger.Debug("Selected coordinate values.", "dim", dim, "kept", len(dimSel[dim]), "total", ds.Size(dim))
	}
	return out, nil
}

// keep returns a copy of ds holding only the requested variables and the
// dims and coordinates they span.
func keep(ds *dataset.Dataset, requests []*config.VariableRequest) (*dataset.Dataset, error) {
	out := dataset.New()
	maps.Copy(out.Attrs, ds.Attrs)
	spanned := map[string]bool{}
	for _, req := range requests {
		v, _ := ds.Variable(req.Name)
		for _, d := range v.Dims {
			spanned[d] = true
		}
	}
	for _, d := range ds.Dims {
		if !spanned[d] {
			continue
		}
		if err := out.SetIndex(ds.Index(d).Clone()); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "selection failed").WithDim(d)
		}
	}
	for _, req := range requests {
		v, _ := ds.Variable(req.Name)
		if err := out.AddVariable(v.Clone()); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "selection failed").WithVariable(req.Name)
		}
	}
	for _, c := range ds.Coords {
		if slices.ContainsFunc(c.Dims, func(d string) bool { return !spanned[d] }) {
			continue
		}
		if err := out.AddCoord(c.Clone()); err != nil {
			return nil, fault.Wrap(fault.Configuration, err, "selection failed").WithVariable(c.Name)
		}
	}
	return out, nil
}

func checkVariableUnits(v *dataset.Variable, want string) error {
	if want == "" {
		return nil
	}
	got, ok := v.Attrs["units"]
	if !ok {
		return fault.New(fault.UnitMismatch, "expected units %q but the variable records none", want).WithVariable(v.Name)
	}
	if got != want {
		return fault.New(fault.UnitMismatch, "expected units %q but got %q", want, got).WithVariable(v.Name)
	}
	return nil
}

// checkCoordUnits compares against the coordinate's units only when the
// coordinate records them.
func checkCoordUnits(ix *dataset.Index, want string) *fault.Error {
	got, ok := ix.Attrs["units"]
	if !ok || want == "" || got == want {
		return nil
	}
	return fault.New(fault.UnitMismatch, "expected units %q for coordinate but got %q", want, got).WithDim(ix.Dim)
}

func positions(ix *dataset.Index, sel *config.Selection) ([]int, error) {
	if sel.Range != nil {
		return Range(ix, sel.Range)
	}
	labels, err := ix.CoerceAll(sel.Values)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "invalid selection value").WithDim(ix.Dim)
	}
	pos, missing := ix.Locate(labels)
	if missing != nil {
		return nil, fault.New(fault.MissingCoordinateValue, "value %s not found in coordinate", missing).WithDim(ix.Dim)
	}
	return pos, nil
}

func withVariable(err error, name string) error {
	if fe, ok := err.(*fault.Error); ok {
		return fe.WithVariable(name)
	}
	return err
}

// Range returns the positions of the members of ix within the inclusive
// range r. Both ends must be members of the index. When r carries a step,
// the spacing of the selected members must be constant and equal to it;
// time steps are ISO-8601 durations.
func Range(ix *dataset.Index, r *config.Range) ([]int, error) {
	start, err := ix.Coerce(r.Start)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "invalid range start").WithDim(ix.Dim)
	}
	end, err := ix.Coerce(r.End)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, err, "invalid range end").WithDim(ix.Dim)
	}
	if start.Equal(end) {
		return nil, fault.New(fault.Configuration, "range start and end cannot be the same (%s)", start).WithDim(ix.Dim)
	}
	if _, missing := ix.Locate([]dataset.Label{start, end}); missing != nil {
		return nil, fault.New(fault.MissingCoordinateValue, "range bound %s is not in the data; coordinate spans %s", missing, span(ix)).WithDim(ix.Dim)
	}

	pos := ix.Between(start, end)
	if len(pos) == 0 {
		return nil, fault.New(fault.Configuration, "range %s to %s selects nothing", start, end).WithDim(ix.Dim)
	}
	if config.IsSet(r.Step) {
		if err := checkStep(ix, pos, r); err != nil {
			return nil, err
		}
	}
	return pos, nil
}

func checkStep(ix *dataset.Index, pos []int, r *config.Range) error {
	want, err := stepValue(ix.Kind(), r)
	if err != nil {
		return fault.Wrap(fault.Configuration, err, "invalid range step").WithDim(ix.Dim)
	}
	if len(pos) < 2 {
		return nil
	}
	value := func(p int) float64 {
		l := ix.Labels[p]
		if l.Kind() == dataset.KindTime {
			return float64(l.Time().UnixNano())
		}
		return l.Float()
	}
	first := value(pos[1]) - value(pos[0])
	for i := 2; i < len(pos); i++ {
		if d := value(pos[i]) - value(pos[i-1]); d != first {
			return fault.New(fault.Configuration, "step size is not constant: %v then %v", first, d).WithDim(ix.Dim)
		}
	}
	if first != want {
		return fault.New(fault.Configuration, "step size in the data (%v) is not the requested one (%v)", display(ix.Kind(), first), display(ix.Kind(), want)).WithDim(ix.Dim)
	}
	return nil
}

// stepValue is the requested step in the units value() works in: nanoseconds
// for times, the plain value for numbers.
func stepValue(kind dataset.LabelKind, r *config.Range) (float64, error) {
	switch kind {
	case dataset.KindTime:
		s, err := toString(r)
		if err != nil {
			return 0, err
		}
		d, err := cftime.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		return float64(d), nil
	case dataset.KindNumber:
		l, err := dataset.LabelFromValue(r.Step, dataset.KindNumber)
		if err != nil {
			return 0, err
		}
		return l.Float(), nil
	}
	return 0, fmt.Errorf("a step cannot be checked on a %s coordinate", kind)
}

func toString(r *config.Range) (string, error) {
	if r.Step.Type() != cty.String {
		return "", fmt.Errorf("time steps are ISO-8601 duration strings, got %s", r.Step.Type().FriendlyName())
	}
	return r.Step.AsString(), nil
}

func display(kind dataset.LabelKind, v float64) string {
	if kind == dataset.KindTime {
		return time.Duration(v).String()
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func span(ix *dataset.Index) string {
	if ix.Len() == 0 {
		return "nothing"
	}
	lo, hi := ix.Labels[0], ix.Labels[0]
	for _, l := range ix.Labels[1:] {
		if l.Compare(lo) < 0 {
			lo = l
		}
		if l.Compare(hi) > 0 {
			hi = l
		}
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}
