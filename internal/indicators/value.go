package indicators

// Value is a computed indicator value. Defined is false until enough
// samples (>= period) have accumulated; callers must not treat an
// undefined value as zero.
type Value struct {
	Defined bool
	V       float64
}

// Undefined is the zero Value, returned before an indicator's warmup
// completes.
var Undefined = Value{}

// Defined wraps v in a defined Value.
func defined(v float64) Value {
	return Value{Defined: true, V: v}
}
