package mutate

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by every Unconfigured method. It marks the
// seam between this package's contract and the actual presentation-editing
// library, whose wire format and internals are out of scope here — a
// deployment wires a real Client constructor in its place.
var ErrNotConfigured = errors.New("mutate: no presentation-editing backend configured")

// Unconfigured is a Client that refuses every operation with
// ErrNotConfigured. It lets the Stage Engine and Validation Loop be
// constructed and their control flow exercised end to end before a real
// backend is wired in, without pretending to edit anything.
type Unconfigured struct{}

var _ Client = Unconfigured{}

func (Unconfigured) Open(context.Context, string) error                 { return ErrNotConfigured }
func (Unconfigured) Save(context.Context, string) error                 { return ErrNotConfigured }
func (Unconfigured) SlideCount(context.Context) (int, error)            { return 0, ErrNotConfigured }
func (Unconfigured) CloneSlide(context.Context, int) (int, error)       { return 0, ErrNotConfigured }
func (Unconfigured) DeleteSlides(context.Context, []int) error          { return ErrNotConfigured }
func (Unconfigured) ReorderSlides(context.Context, []int) error         { return ErrNotConfigured }
func (Unconfigured) GetNotes(context.Context, int) (string, error)      { return "", ErrNotConfigured }
func (Unconfigured) SetNotes(context.Context, int, string) error        { return ErrNotConfigured }
func (Unconfigured) ListElements(context.Context, int) ([]ElementInfo, error) {
	return nil, ErrNotConfigured
}
func (Unconfigured) Apply(context.Context, int, []Operation) error { return ErrNotConfigured }
func (Unconfigured) RenderSlides(context.Context, string) (map[int]string, error) {
	return nil, ErrNotConfigured
}
func (Unconfigured) Close() error { return nil }
