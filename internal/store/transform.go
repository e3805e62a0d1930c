package store

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"markbind/internal/domain"
)

func applyTransform(rows []domain.Row, t domain.Transform) ([]domain.Row, error) {
	switch t.Type {
	case domain.TransformBin:
		return binRows(rows, t)
	case domain.TransformAggregate:
		return aggregateRows(rows, t)
	}
	return nil, domain.ErrValidation("unknown transform type %q", t.Type)
}

func binRows(rows []domain.Row, t domain.Transform) ([]domain.Row, error) {
	if len(t.As) != 3 {
		return nil, domain.ErrValidation("bin %s: expected 3 output fields, got %d", t.Field, len(t.As))
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		if v, ok := toFloat(r[t.Field]); ok {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	maxBins := t.MaxBins
	if maxBins <= 0 {
		maxBins = 10
	}
	step := niceStep(hi-lo, maxBins)

	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		row := make(domain.Row, len(r)+3)
		for k, v := range r {
			row[k] = v
		}
		if v, ok := toFloat(r[t.Field]); ok {
			start := math.Floor(v/step) * step
			row[t.As[0]] = start
			row[t.As[1]] = start + step/2
			row[t.As[2]] = start + step
		} else {
			row[t.As[0]], row[t.As[1]], row[t.As[2]] = nil, nil, nil
		}
		out[i] = row
	}
	return out, nil
}

// niceStep picks a 1/2/5 x 10^k bin width giving at most maxBins bins over span.
func niceStep(span float64, maxBins int) float64 {
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		return 1
	}
	raw := span / float64(maxBins)
	base := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if base*m >= raw {
			return base * m
		}
	}
	return base * 10
}

func aggregateRows(rows []domain.Row, t domain.Transform) ([]domain.Row, error) {
	if len(t.Fields) != len(t.Ops) || len(t.Ops) != len(t.As) {
		return nil, domain.ErrValidation("aggregate: fields, ops and as must have equal length")
	}
	type group struct {
		key  domain.Row
		rows []domain.Row
	}
	var order []string
	groups := map[string]*group{}
	for _, r := range rows {
		parts := make([]string, len(t.Groupby))
		for i, g := range t.Groupby {
			parts[i] = fmt.Sprintf("%v", r[g])
		}
		k := strings.Join(parts, "\x00")
		grp, ok := groups[k]
		if !ok {
			key := make(domain.Row, len(t.Groupby))
			for _, g := range t.Groupby {
				key[g] = r[g]
			}
			grp = &group{key: key}
			groups[k] = grp
			order = append(order, k)
		}
		grp.rows = append(grp.rows, r)
	}

	out := make([]domain.Row, 0, len(order))
	for _, k := range order {
		grp := groups[k]
		row := make(domain.Row, len(t.Groupby)+len(t.As))
		for f, v := range grp.key {
			row[f] = v
		}
		for i, op := range t.Ops {
			v, err := aggregate(op, t.Fields[i], grp.rows)
			if err != nil {
				return nil, err
			}
			row[t.As[i]] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func aggregate(op, field string, rows []domain.Row) (any, error) {
	var nums []float64
	valid := 0
	for _, r := range rows {
		v := r[field]
		if v == nil {
			continue
		}
		valid++
		if f, ok := toFloat(v); ok {
			nums = append(nums, f)
		}
	}

	switch op {
	case "count":
		return len(rows), nil
	case "valid":
		return valid, nil
	case "missing":
		return len(rows) - valid, nil
	case "distinct":
		seen := map[string]bool{}
		for _, r := range rows {
			seen[fmt.Sprintf("%v", r[field])] = true
		}
		return len(seen), nil
	case "values":
		vals := make([]any, 0, len(rows))
		for _, r := range rows {
			vals = append(vals, r[field])
		}
		return vals, nil
	case "argmin", "argmax":
		return argExtreme(op == "argmax", field, rows), nil
	}

	if len(nums) == 0 {
		return nil, nil
	}
	switch op {
	case "sum":
		return sum(nums), nil
	case "mean", "average":
		return sum(nums) / float64(len(nums)), nil
	case "min":
		return slices.Min(nums), nil
	case "max":
		return slices.Max(nums), nil
	case "median":
		return quantile(nums, 0.5), nil
	case "q1":
		return quantile(nums, 0.25), nil
	case "q3":
		return quantile(nums, 0.75), nil
	case "variance":
		return variance(nums, true), nil
	case "variancep":
		return variance(nums, false), nil
	case "stdev":
		return math.Sqrt(variance(nums, true)), nil
	case "stdevp":
		return math.Sqrt(variance(nums, false)), nil
	case "modeskew":
		sd := math.Sqrt(variance(nums, false))
		if sd == 0 {
			return 0.0, nil
		}
		return (sum(nums)/float64(len(nums)) - quantile(nums, 0.5)) / sd, nil
	}
	return nil, domain.ErrValidation("unknown aggregate op %q", op)
}

func argExtreme(wantMax bool, field string, rows []domain.Row) domain.Row {
	var best domain.Row
	var bestVal float64
	for _, r := range rows {
		v, ok := toFloat(r[field])
		if !ok {
			continue
		}
		if best == nil || (wantMax && v > bestVal) || (!wantMax && v < bestVal) {
			best, bestVal = r, v
		}
	}
	return best
}

func sum(nums []float64) float64 {
	var s float64
	for _, n := range nums {
		s += n
	}
	return s
}

func quantile(nums []float64, p float64) float64 {
	sorted := slices.Clone(nums)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

func variance(nums []float64, sample bool) float64 {
	n := float64(len(nums))
	if sample && n < 2 {
		return 0
	}
	mean := sum(nums) / n
	var ss float64
	for _, v := range nums {
		ss += (v - mean) * (v - mean)
	}
	if sample {
		return ss / (n - 1)
	}
	return ss / n
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
