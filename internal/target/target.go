// Package target holds the triple/CPU/feature registry and the object
// emission pipeline for spec.md §6's two supported targets:
// riscv32-unknown-none-elf (primary) and host. Lower does not look at the
// triple: both targets get the same RV32 ELF32 relocatable object.
package target

import "fmt"

// Triple names one supported compilation target.
type Triple struct {
	Name     string
	CPU      string
	Features []string
}

// Registry is the fixed set of targets this compiler knows how to emit
// for, grounded on the teacher's `-T os/arch` global target switch
// (std/compiler/main.go) but narrowed to the two triples spec.md §6 names.
var Registry = map[string]Triple{
	"riscv32-unknown-none-elf": {
		Name: "riscv32-unknown-none-elf", CPU: "generic-rv32", Features: []string{"+m", "+c"},
	},
	"host": {
		Name: "host", CPU: "native", Features: nil,
	},
}

// Lookup resolves a triple name, or reports an error naming the triples
// that are actually registered.
func Lookup(name string) (Triple, error) {
	t, ok := Registry[name]
	if !ok {
		return Triple{}, fmt.Errorf("unknown target %q (known: riscv32-unknown-none-elf, host)", name)
	}
	return t, nil
}
