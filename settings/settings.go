// Package settings implements the staged parameter engine of a block: a
// transactional property-map overlay over the block's fields with
// auto-update driven by stream tags and auto-forward propagation to
// downstream blocks.
package settings

import (
	"fmt"
	"sync"
	"sync/atomic"

	"pipelined.dev/graph/pmt"
)

// TypeMismatchError is returned by Set when a value kind does not match
// the field it addresses.
type TypeMismatchError struct {
	Key      string
	Expected pmt.Kind
	Got      pmt.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("settings: value for key %q has kind %v, field expects %v", e.Key, e.Got, e.Expected)
}

// Result is returned by ApplyStaged. Applied holds the parameters the
// fields accepted, Forward the parameters to append as a tag on the
// block's output ports.
type Result struct {
	Applied *pmt.Map
	Forward *pmt.Map
}

// Logger receives validator rejections. Matches the log package.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

type silentLogger struct{}

func (silentLogger) Debug(...interface{}) {}
func (silentLogger) Info(...interface{})  {}

// Option configures the engine.
type Option func(*Settings)

// WithLogger sets the logger for validator rejections.
func WithLogger(l Logger) Option {
	return func(s *Settings) { s.log = l }
}

// Settings is the per-block parameter store: the active mirror of the
// field values, the staged overlay, stored defaults, and the auto-update
// and auto-forward key sets.
type Settings struct {
	block  any
	fields []Field
	log    Logger

	mu          sync.Mutex
	active      *pmt.Map
	staged      *pmt.Map
	defaults    *pmt.Map
	autoUpdate  orderedSet
	autoForward orderedSet
	changed     atomic.Bool
}

// New builds the engine for a block. Every writable field of a supported
// kind becomes an active parameter and an auto-update key, fields named
// after a well-known stream tag additionally auto-forward. Annotation
// metadata and the block description are folded into the block's
// meta-information map when it exposes one.
func New(block any, opts ...Option) *Settings {
	s := &Settings{
		block:  block,
		log:    silentLogger{},
		active: pmt.New(),
		staged: pmt.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if r, ok := block.(Reflectable); ok {
		s.fields = r.Fields()
	}

	var meta *pmt.Map
	if mi, ok := block.(MetaInformer); ok {
		meta = mi.MetaInformation()
	}
	if meta != nil {
		if d, ok := block.(Describer); ok {
			meta.Set("description", pmt.String(d.Description()))
		}
	}
	for _, f := range s.fields {
		if meta != nil && f.Annotation != nil {
			meta.Set(f.Name+"::description", pmt.String(f.Annotation.Description))
			meta.Set(f.Name+"::unit", pmt.String(f.Annotation.Unit))
			meta.Set(f.Name+"::visible", pmt.Bool(f.Annotation.Visible))
		}
		if !f.Writable {
			continue
		}
		s.autoUpdate.add(f.Name)
		if isDefaultTag(f.Name) {
			s.autoForward.add(f.Name)
		}
	}
	s.updateActive()
	s.defaults = s.active.Clone()
	return s
}

func (s *Settings) findField(key string) *Field {
	for i := range s.fields {
		if s.fields[i].Name == key && s.fields[i].Writable {
			return &s.fields[i]
		}
	}
	return nil
}

// Changed reports whether staged parameters await an apply.
func (s *Settings) Changed() bool { return s.changed.Load() }

// Set stages new parameters. Keys addressing a writable field of the
// matching kind are staged and removed from the auto-update set, explicit
// writes override tag-driven updates. A kind mismatch fails. Unmatched
// keys are returned and folded into the block's meta-information map.
func (s *Settings) Set(params *pmt.Map, _ ...Ctx) (*pmt.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unconsumed := pmt.New()
	var err error
	params.Range(func(key string, v pmt.Value) bool {
		if key == ResetDefaults || key == StoreDefaults {
			s.staged.Set(key, v)
			s.changed.Store(true)
			return true
		}
		f := s.findField(key)
		if f == nil {
			unconsumed.Set(key, v)
			return true
		}
		if f.Kind != v.Kind() {
			err = &TypeMismatchError{Key: key, Expected: f.Kind, Got: v.Kind()}
			return false
		}
		s.autoUpdate.remove(key)
		s.staged.Set(key, v)
		s.changed.Store(true)
		return true
	})
	if err != nil {
		return nil, err
	}
	if mi, ok := s.block.(MetaInformer); ok && !unconsumed.Empty() {
		mi.MetaInformation().Merge(unconsumed)
	}
	return unconsumed, nil
}

// AutoUpdate stages parameters arriving as stream tags, restricted to
// keys still in the auto-update set. Unknown keys and kind mismatches are
// dropped silently.
func (s *Settings) AutoUpdate(params *pmt.Map, _ ...Ctx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	params.Range(func(key string, v pmt.Value) bool {
		if !s.autoUpdate.contains(key) {
			return true
		}
		if f := s.findField(key); f != nil && f.Kind == v.Kind() {
			s.staged.Set(key, v)
			s.changed.Store(true)
		}
		return true
	})
}

// Get returns all active parameters.
func (s *Settings) Get() *pmt.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}

// GetKeys returns the active parameters for the selected keys.
func (s *Settings) GetKeys(keys ...string) *pmt.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := pmt.New()
	for _, k := range keys {
		if v, ok := s.active.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

// GetValue returns the active value for a single key.
func (s *Settings) GetValue(key string) (pmt.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Get(key)
}

// Staged returns the staged, not yet applied parameters.
func (s *Settings) Staged() *pmt.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged.Clone()
}

// AutoUpdateKeys returns the keys updated from stream tags.
func (s *Settings) AutoUpdateKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoUpdate.values()
}

// AutoForwardKeys returns the keys propagated downstream.
func (s *Settings) AutoForwardKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoForward.values()
}

// StoreDefaults snapshots the active parameters as the defaults
// reinstated by ResetDefaults.
func (s *Settings) StoreDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateActive()
	s.defaults = s.active.Clone()
}

// ResetDefaults stages the stored defaults and applies them.
func (s *Settings) ResetDefaults() Result {
	s.mu.Lock()
	s.staged = s.defaults.Clone()
	s.staged.Set(ResetDefaults, pmt.Bool(true))
	s.changed.Store(true)
	s.mu.Unlock()
	return s.ApplyStaged()
}

// ApplyStaged synchronises the staged parameters into the block fields.
// Validator-rejected writes are logged and skipped; auto-forward keys are
// collected independently of local acceptance. The settings-changed hook
// runs synchronously, at most once, on the caller's goroutine, and only
// when at least one parameter was applied.
func (s *Settings) ApplyStaged() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := Result{Applied: pmt.New(), Forward: pmt.New()}

	resetRequested := s.staged.Contains(ResetDefaults)
	storeRequested := s.staged.Contains(StoreDefaults)
	if resetRequested {
		s.staged = s.defaults.Clone()
	}

	old := s.active.Clone()
	s.staged.Range(func(key string, v pmt.Value) bool {
		if key == ResetDefaults || key == StoreDefaults {
			return true
		}
		if f := s.findField(key); f != nil && f.Kind == v.Kind() {
			if f.Set(v) {
				result.Applied.Set(key, v)
			} else {
				s.log.Info(fmt.Sprintf("settings: cannot set field %q = %v, rejected by validator", key, v))
			}
		}
		if s.autoForward.contains(key) {
			result.Forward.Set(key, v)
		}
		return true
	})

	s.updateActive()

	if !result.Applied.Empty() {
		switch hook := s.block.(type) {
		case ChangeForwardObserver:
			hook.SettingsChanged(old, result.Applied, result.Forward)
		case ChangeObserver:
			hook.SettingsChanged(old, result.Applied)
		}
	}

	if storeRequested {
		s.defaults = s.active.Clone()
	}
	if resetRequested {
		if r, ok := s.block.(Resetter); ok {
			r.Reset()
			s.updateActive()
		}
	}

	s.staged.Clear()
	s.changed.Store(false)
	return result
}

// UpdateActive re-reads every field into the active map, used after the
// block mutated fields outside the engine.
func (s *Settings) UpdateActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateActive()
}

func (s *Settings) updateActive() {
	for _, f := range s.fields {
		if f.Get != nil {
			s.active.Set(f.Name, f.Get())
		}
	}
}
