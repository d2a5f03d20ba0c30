package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Reconciler drives a Supervisor towards a desired set of named captures.
type Reconciler struct {
	sup    *Supervisor
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]ID
}

// NewReconciler creates a Reconciler bound to sup. A nil logger uses the
// supervisor's logger.
func NewReconciler(sup *Supervisor, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = sup.logger
	}
	return &Reconciler{
		sup:    sup,
		logger: logger,
		active: make(map[string]ID),
	}
}

// Active returns the capture id currently bound to name.
func (r *Reconciler) Active(name string) (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[name]
	return id, ok
}

// Apply starts names missing from the supervisor, stops and discards names no
// longer desired, and restarts names whose spec changed. A capture that
// ended on its own is left alone until its spec changes. Errors for
// individual names are joined; the remaining names are still applied.
func (r *Reconciler) Apply(desired map[string]Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	for _, name := range sortedKeys(r.active) {
		spec, keep := desired[name]
		id := r.active[name]
		info, err := r.sup.Get(id)
		if errors.Is(err, ErrNotFound) {
			delete(r.active, name)
			continue
		}
		if keep && info.Spec == spec {
			continue
		}

		if keep {
			r.logger.Info("Capture definition changed, restarting", "name", name, "capture_id", uint64(id))
		} else {
			r.logger.Info("Capture definition removed, stopping", "name", name, "capture_id", uint64(id))
		}
		if err := r.remove(id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		delete(r.active, name)
	}

	for _, name := range sortedKeys(desired) {
		if _, ok := r.active[name]; ok {
			continue
		}
		id, err := r.sup.Start(desired[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		r.active[name] = id
		r.logger.Info("Capture definition applied", "name", name, "capture_id", uint64(id))
	}

	return errors.Join(errs...)
}

func (r *Reconciler) remove(id ID) error {
	if err := r.sup.Stop(id); err != nil {
		return err
	}
	return r.sup.Discard(id)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
