// Package rowfilter compiles user expressions that select wide-table
// rows, e.g. `passed && site == 2` or `values["Vcc"] > 3.1`.
package rowfilter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/twinfer/stdf-plugin/pkg/extract"
)

// Filter is a compiled row predicate, safe for reuse across rows.
type Filter struct {
	src  string
	prog *vm.Program
}

// Compile compiles a filter expression. The expression must evaluate
// to a boolean.
func Compile(src string) (*Filter, error) {
	prog, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling row filter %q: %w", src, err)
	}
	return &Filter{src: src, prog: prog}, nil
}

// Match evaluates the filter against one row.
func (f *Filter) Match(row extract.WideRow) (bool, error) {
	out, err := expr.Run(f.prog, envFor(row))
	if err != nil {
		return false, fmt.Errorf("evaluating row filter %q: %w", f.src, err)
	}
	keep, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("row filter %q returned %T, want bool", f.src, out)
	}
	return keep, nil
}

// Apply returns the rows the filter keeps, preserving order.
func (f *Filter) Apply(rows []extract.WideRow) ([]extract.WideRow, error) {
	kept := make([]extract.WideRow, 0, len(rows))
	for _, row := range rows {
		ok, err := f.Match(row)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// envFor flattens a row into the expression environment. Absent
// optionals become nil so expressions can test for them.
func envFor(row extract.WideRow) map[string]any {
	env := map[string]any{
		"head":       int(row.Head),
		"site":       int(row.Site),
		"seq":        row.Seq,
		"part_id":    row.PartID,
		"passed":     false,
		"retested":   row.Retested,
		"incomplete": row.Incomplete,
		"orphan":     row.Orphan,
		"hard_bin":   nil,
		"soft_bin":   nil,
		"values":     row.Values,
	}
	if row.Passed != nil {
		env["passed"] = *row.Passed
	}
	if row.HardBin != nil {
		env["hard_bin"] = int(*row.HardBin)
	}
	if row.SoftBin != nil {
		env["soft_bin"] = int(*row.SoftBin)
	}
	return env
}
