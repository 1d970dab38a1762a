package cascade

// Numeric covers the value types the arithmetic helpers below operate on.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// AddAndGet atomically adds delta to the value and returns the result. The
// update is a compare-and-set loop, so concurrent adders never lose an
// increment; the subscriber chains fire once per successful change.
// ErrNotAsserted is returned when no value is set.
func AddAndGet[T Numeric](rv *ReactiveValue[T], delta T) (T, error) {
	return updateAndGet(rv, func(cur T) T { return cur + delta })
}

// MultiplyAndGet atomically multiplies the value by factor and returns the
// result.
func MultiplyAndGet[T Numeric](rv *ReactiveValue[T], factor T) (T, error) {
	return updateAndGet(rv, func(cur T) T { return cur * factor })
}

// IncrementAndGet atomically adds one to the value and returns the result.
func IncrementAndGet[T Numeric](rv *ReactiveValue[T]) (T, error) {
	return AddAndGet(rv, 1)
}

// DecrementAndGet atomically subtracts one from the value and returns the
// result.
func DecrementAndGet[T Numeric](rv *ReactiveValue[T]) (T, error) {
	return updateAndGet(rv, func(cur T) T { return cur - 1 })
}

func updateAndGet[T Numeric](rv *ReactiveValue[T], f func(T) T) (T, error) {
	for {
		cur, err := rv.Get()
		if err != nil {
			var zero T
			return zero, err
		}
		next := f(cur)
		if rv.CompareAndSet(cur, next) {
			return next, nil
		}
	}
}
