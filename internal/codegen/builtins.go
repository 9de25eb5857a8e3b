package codegen

import "github.com/parisxmas/esp32basic/internal/ir"

// builtinSig names a built-in function's runtime ABI entry point and
// result storage type (spec.md's "Built-in functions: rb_fn_<lowercased_
// name>" rule, §4.4 example: LEFT$ -> rb_fn_left_s).
type builtinSig struct {
	runtime string
	ret     ir.StorageKind
}

// builtins is the whitelist lowerCallOrIndex consults to recognize a
// CallOrIndex as a built-in rather than an array access or user FUNCTION
// call. internal/sema types built-in calls from its own table
// (builtinReturnTypes), not from this one.
var builtins = map[string]builtinSig{
	"LEN":    {"rb_fn_len", ir.StorageNumericI32},
	"LEFT$":  {"rb_fn_left_s", ir.StoragePointerString},
	"RIGHT$": {"rb_fn_right_s", ir.StoragePointerString},
	"MID$":   {"rb_fn_mid_s", ir.StoragePointerString},
	"STR$":   {"rb_fn_str_s", ir.StoragePointerString},
	"VAL":    {"rb_fn_val", ir.StorageNumericF32},
	"CHR$":   {"rb_fn_chr_s", ir.StoragePointerString},
	"ASC":    {"rb_fn_asc", ir.StorageNumericI32},
	"UCASE$": {"rb_fn_ucase_s", ir.StoragePointerString},
	"LCASE$": {"rb_fn_lcase_s", ir.StoragePointerString},
	"INSTR":  {"rb_fn_instr", ir.StorageNumericI32},
	"SPACE$": {"rb_fn_space_s", ir.StoragePointerString},
	"ABS":    {"rb_fn_abs", ir.StorageNumericF32},
	"INT":    {"rb_fn_int", ir.StorageNumericI32},
	"FIX":    {"rb_fn_fix", ir.StorageNumericI32},
	"SGN":    {"rb_fn_sgn", ir.StorageNumericI32},
	"SQR":    {"rb_fn_sqr", ir.StorageNumericF32},
	"SIN":    {"rb_fn_sin", ir.StorageNumericF32},
	"COS":    {"rb_fn_cos", ir.StorageNumericF32},
	"TAN":    {"rb_fn_tan", ir.StorageNumericF32},
	"ATN":    {"rb_fn_atn", ir.StorageNumericF32},
	"LOG":    {"rb_fn_log", ir.StorageNumericF32},
	"EXP":    {"rb_fn_exp", ir.StorageNumericF32},
	"RND":    {"rb_fn_rnd", ir.StorageNumericF32},
	"TIMER":  {"rb_fn_timer", ir.StorageNumericF32},
}
