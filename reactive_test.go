package cascade

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactiveValueFiresOnChangeOnly(t *testing.T) {
	ec := immediate()
	color := NewReactiveValue[string]("color", ec, WithValueLogger[string](quiet()))

	var got []string
	Subscribe(color, func(c string) error {
		got = append(got, c)
		return nil
	})

	color.Set("red")
	color.Set("red") // unchanged, must not fire
	color.Set("blue")

	require.Equal(t, []string{"red", "blue"}, got)

	v, err := color.Get()
	require.NoError(t, err)
	assert.Equal(t, "blue", v)
}

func TestReactiveValueSubscriptionNeedsPriming(t *testing.T) {
	ec := immediate()
	color := NewReactiveValue[string]("color", ec, WithValueLogger[string](quiet()))
	color.Set("green")

	var got []string
	Subscribe(color, func(c string) error {
		got = append(got, c)
		return nil
	})

	// attaching after the fact delivers nothing on its own
	require.Empty(t, got)

	color.Fire()
	require.Equal(t, []string{"green"}, got)
}

func TestReactiveValueStandingSubscriptionRefires(t *testing.T) {
	ec := immediate()
	n := NewReactiveValue[int]("n", ec, WithValueLogger[int](quiet()))

	var doubled []int
	mapped := Map[int](n.Source(), func(v int) (int, error) {
		return v * 2, nil
	})
	Then(mapped, func(v int) error {
		doubled = append(doubled, v)
		return nil
	})

	n.Set(1)
	n.Set(2)
	n.Set(3)

	// the whole chain re-armed and re-ran per change, in order
	require.Equal(t, []int{2, 4, 6}, doubled)
}

func TestReactiveValueGetBeforeAssert(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[int]("empty", ec, WithValueLogger[int](quiet()))

	require.False(t, v.IsAsserted())
	_, err := v.Get()
	require.ErrorIs(t, err, ErrNotAsserted)

	_, ok := v.SafeGet()
	assert.False(t, ok)
}

func TestReactiveValueInitialIsAsserted(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[int]("seeded", ec,
		WithInitial[int](7),
		WithValueLogger[int](quiet()))

	require.True(t, v.IsAsserted())
	got, err := v.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestReactiveValueCompareAndSet(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[int]("cas", ec, WithValueLogger[int](quiet()))

	var fires int
	Subscribe(v, func(int) error {
		fires++
		return nil
	})

	// unasserted: nothing to compare against
	require.False(t, v.CompareAndSet(0, 1))

	v.Set(1)
	require.Equal(t, 1, fires)

	require.False(t, v.CompareAndSet(2, 3), "expectation does not match")
	require.True(t, v.CompareAndSet(1, 5))
	require.Equal(t, 2, fires)

	// swapping in the current value succeeds but does not fire
	require.True(t, v.CompareAndSet(5, 5))
	require.Equal(t, 2, fires)
}

func TestReactiveValueCompareAndUnsetGoesInert(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[int]("retract", ec, WithValueLogger[int](quiet()))

	var fires int
	Subscribe(v, func(int) error {
		fires++
		return nil
	})

	v.Set(4)
	require.Equal(t, 1, fires)

	require.False(t, v.CompareAndUnset(9))
	require.True(t, v.CompareAndUnset(4))
	require.False(t, v.IsAsserted())

	// inert: firing delivers nothing until the next set
	v.Fire()
	require.Equal(t, 1, fires)

	v.Set(6)
	require.Equal(t, 2, fires)
}

func TestReactiveValueGetAndSet(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[string]("swap", ec, WithValueLogger[string](quiet()))

	_, wasAsserted := v.GetAndSet("first")
	require.False(t, wasAsserted)

	prev, wasAsserted := v.GetAndSet("second")
	require.True(t, wasAsserted)
	assert.Equal(t, "first", prev)
}

func TestReactiveValueInputMapping(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[string]("upper", ec,
		WithInputMapping[string](func(s string) (string, error) {
			return strings.ToUpper(s), nil
		}),
		WithValueLogger[string](quiet()))

	v.Set("hello")
	got, err := v.Get()
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)

	// mapping to the stored value again is still a no-op fire-wise
	var fires int
	Subscribe(v, func(string) error {
		fires++
		return nil
	})
	v.Set("HELLO")
	assert.Zero(t, fires)
}

func TestReactiveValueMappingErrorDropsTheSet(t *testing.T) {
	ec := immediate()
	bad := errors.New("bad input")

	var reported error
	v := NewReactiveValue[string]("strict", ec,
		WithInputMapping[string](func(s string) (string, error) {
			if s == "" {
				return "", bad
			}
			return s, nil
		}),
		WithFireError[string](func(err error) {
			reported = err
		}),
		WithValueLogger[string](quiet()))

	v.Set("ok")
	v.Set("")

	require.ErrorIs(t, reported, bad)
	got, err := v.Get()
	require.NoError(t, err)
	assert.Equal(t, "ok", got, "failed set must not change the value")
}

func TestReactiveValueRejectsNil(t *testing.T) {
	ec := immediate()
	v := NewReactiveValue[*int]("ptr", ec, WithValueLogger[*int](quiet()))

	require.Panics(t, func() { v.Set(nil) })

	n := 3
	v.Set(&n)
	require.True(t, v.IsAsserted())
}

func TestReactiveValueOnSerialContext(t *testing.T) {
	ec := NewSerialContext("values", WithContextLogger(quiet()))
	defer ec.Close()

	v := NewReactiveValue[int]("counter", ec, WithValueLogger[int](quiet()))

	got := make(chan int, 4)
	Subscribe(v, func(n int) error {
		got <- n
		return nil
	})

	v.Set(10)

	select {
	case n := <-got:
		assert.Equal(t, 10, n)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not run on the serial context")
	}
}
