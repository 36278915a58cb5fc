package tcp

import "github.com/soypat/seqs"

// Value and Size alias the sequence-space arithmetic types from seqs so
// that every file in this package can name them without an import
// qualifier, while the modulo-2**32 comparison logic itself lives in
// one audited place.
type (
	Value = seqs.Value
	Size  = seqs.Size
)

// Add, LessThan and InWindow re-export the seqs modular-arithmetic
// helpers used throughout segment acceptability checks.
var (
	Add      = seqs.Add
	LessThan = seqs.LessThan
	InRange  = seqs.InRange
	InWindow = seqs.InWindow
	Sizeof   = seqs.Sizeof
)

// LessThanEq reports whether v == w or v precedes w in sequence space.
func LessThanEq(v, w Value) bool {
	return v == w || LessThan(v, w)
}
