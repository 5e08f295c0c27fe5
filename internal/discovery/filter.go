package discovery

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Filter evaluates a JavaScript expression against test IDs. The
// expression sees three bindings per item:
//
//	id   — the full test ID
//	file — the part before the first "::", or the whole ID
//	name — the part after the last "::", or the whole ID
//
// An item is kept when the expression evaluates truthy.
//
// Not safe for concurrent use; the collector evaluates items one at a time.
type Filter struct {
	expr    string
	vm      *goja.Runtime
	program *goja.Program
}

// CompileFilter compiles the expression once so syntax errors surface at
// startup rather than per item.
func CompileFilter(expr string) (*Filter, error) {
	program, err := goja.Compile("filter", expr, false)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &Filter{expr: expr, vm: goja.New(), program: program}, nil
}

// Match reports whether the test ID passes the filter.
func (f *Filter) Match(id string) (bool, error) {
	file, name := splitID(id)
	if err := f.vm.Set("id", id); err != nil {
		return false, fmt.Errorf("set id: %w", err)
	}
	if err := f.vm.Set("file", file); err != nil {
		return false, fmt.Errorf("set file: %w", err)
	}
	if err := f.vm.Set("name", name); err != nil {
		return false, fmt.Errorf("set name: %w", err)
	}

	val, err := f.vm.RunProgram(f.program)
	if err != nil {
		return false, fmt.Errorf("evaluating filter: %w", err)
	}
	return val.ToBoolean(), nil
}

// splitID decomposes a "file::name" style test ID. IDs without the
// separator map both bindings to the whole ID.
func splitID(id string) (file, name string) {
	i := strings.Index(id, "::")
	if i < 0 {
		return id, id
	}
	file = id[:i]
	j := strings.LastIndex(id, "::")
	name = id[j+2:]
	return file, name
}
