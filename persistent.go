package cascade

import (
	"encoding/json"
	"fmt"
)

// PersistentValue is a reactive value whose every change is written through
// the registry's store and which is seeded from the store at creation.
type PersistentValue[T comparable] struct {
	*ReactiveValue[T]
}

// PersistentValueOf returns the persistent value registered under name,
// creating it on first use. A freshly created value is seeded from the
// store when a stored copy exists and decodes, from defaultValue otherwise.
// Asking for an existing name with a different type T is an error.
//
// Fires run on ec; store writes happen afterwards on the registry's own
// worker, so a slow store never stalls subscriber chains.
func PersistentValueOf[T comparable](r *Registry, name string, defaultValue T, ec ExecutionContext, opts ...ValueOption[T]) (*PersistentValue[T], error) {
	if name == "" {
		return nil, fmt.Errorf("persistent value needs a non-empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.values[name]; ok {
		pv, ok := existing.(*PersistentValue[T])
		if !ok {
			return nil, fmt.Errorf("persistent value %q already registered with a different type", name)
		}
		return pv, nil
	}

	initial := defaultValue
	if data, ok, err := r.store.Load(name); err != nil {
		r.logger.Warn("loading persistent value failed, using default",
			"value", name, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			r.logger.Warn("decoding persistent value failed, using default",
				"value", name, "error", err)
		} else {
			initial = v
		}
	}

	rv := NewReactiveValue[T](name, ec, append(opts, WithInitial[T](initial))...)
	pv := &PersistentValue[T]{ReactiveValue: rv}

	Subscribe(rv, func(v T) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding persistent value %q: %w", name, err)
		}
		r.io.Execute(func() {
			if err := r.store.Save(name, data); err != nil {
				r.logger.Error("saving persistent value failed",
					"value", name, "error", err)
			}
		})
		return nil
	})

	r.values[name] = pv
	return pv, nil
}
