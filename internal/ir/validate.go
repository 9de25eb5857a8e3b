package ir

import "fmt"

// Validate checks the well-formedness property every IR consumer relies
// on: every block index a terminator references must exist, and every
// TermSwitch target (including Default) must be in range. internal/
// codegen runs this once after lowering every function, before handing
// the module to internal/target.
func (m *Module) Validate() error {
	for _, f := range m.Funcs {
		n := len(f.Blocks)
		for bi, blk := range f.Blocks {
			switch blk.Term.Kind {
			case TermBranch:
				if blk.Term.Target < 0 || blk.Term.Target >= n {
					return fmt.Errorf("%s: block%d: branch target %d out of range", f.Name, bi, blk.Term.Target)
				}
			case TermCondBranch:
				if blk.Term.Then < 0 || blk.Term.Then >= n || blk.Term.Else < 0 || blk.Term.Else >= n {
					return fmt.Errorf("%s: block%d: cond-branch target out of range", f.Name, bi)
				}
			case TermSwitch:
				if blk.Term.Default < 0 || blk.Term.Default >= n {
					return fmt.Errorf("%s: block%d: switch default %d out of range", f.Name, bi, blk.Term.Default)
				}
				for v, target := range blk.Term.Cases {
					if target < 0 || target >= n {
						return fmt.Errorf("%s: block%d: switch case %d target %d out of range", f.Name, bi, v, target)
					}
				}
			}
		}
	}
	return nil
}
