package containers

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Handle addresses one slot of a HandleTable. The low 32 bits are the slot index plus
// one, the high 32 bits the slot generation at insertion time; zero is never valid.
type Handle uint64

const InvalidHandle Handle = 0

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index+1))
}

func (h Handle) index() uint32 {
	return uint32(h&0xffffffff) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// IsValid only reports whether h could have been produced by a table; use
// HandleTable.Contains to check it is still live.
func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d#%d)", h.index(), h.generation())
}

var ErrStaleHandle = errors.New("stale or unknown handle")

type slot[T any] struct {
	value      T
	label      string
	generation uint32
	occupied   bool
}

// HandleTable owns values of one resource kind. Freed slots are reused with a bumped
// generation, so handles kept past Remove are detected instead of aliasing a new value.
type HandleTable[T any] struct {
	name  string
	slots []slot[T]
	free  []uint32
	live  int
}

func NewHandleTable[T any](name string) *HandleTable[T] {
	return &HandleTable[T]{name: name}
}

// Insert stores value and returns its handle. The label is kept for leak reports; a
// short unique suffix is appended so repeated labels stay distinguishable.
func (t *HandleTable[T]) Insert(label string, value T) Handle {
	label = fmt.Sprintf("%s-%s", label, uuid.NewString()[:8])

	var index uint32
	if n := len(t.free); n > 0 {
		// Existing free spot. Take it.
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		// No free slots, push a new one.
		t.slots = append(t.slots, slot[T]{})
		index = uint32(len(t.slots) - 1)
	}
	s := &t.slots[index]
	s.value = value
	s.label = label
	s.occupied = true
	t.live++
	return makeHandle(index, s.generation)
}

func (t *HandleTable[T]) lookup(h Handle) (*slot[T], error) {
	if !h.IsValid() {
		return nil, errors.Wrapf(ErrStaleHandle, "%s: nil handle", t.name)
	}
	i := h.index()
	if int(i) >= len(t.slots) {
		return nil, errors.Wrapf(ErrStaleHandle, "%s: %s out of range (max=%d)", t.name, h, len(t.slots))
	}
	s := &t.slots[i]
	if !s.occupied || s.generation != h.generation() {
		return nil, errors.Wrapf(ErrStaleHandle, "%s: %s", t.name, h)
	}
	return s, nil
}

// Get returns the value stored under h.
func (t *HandleTable[T]) Get(h Handle) (T, error) {
	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// MustGet is Get for handles the caller owns; a stale handle is a programming error.
func (t *HandleTable[T]) MustGet(h Handle) T {
	v, err := t.Get(h)
	if err != nil {
		panic(err)
	}
	return v
}

// Set replaces the value stored under a live handle.
func (t *HandleTable[T]) Set(h Handle, value T) error {
	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	s.value = value
	return nil
}

func (t *HandleTable[T]) Contains(h Handle) bool {
	_, err := t.lookup(h)
	return err == nil
}

// Remove frees the slot and returns the value that was stored in it.
func (t *HandleTable[T]) Remove(h Handle) (T, error) {
	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := s.value
	var zero T
	s.value = zero
	s.label = ""
	s.occupied = false
	s.generation++
	t.free = append(t.free, h.index())
	t.live--
	return v, nil
}

// Len returns the number of live entries.
func (t *HandleTable[T]) Len() int {
	return t.live
}

// Each visits live entries in slot order.
func (t *HandleTable[T]) Each(fn func(h Handle, label string, value T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.occupied {
			fn(makeHandle(uint32(i), s.generation), s.label, s.value)
		}
	}
}

// Drain removes every live entry, handing each to release first. It returns the labels
// of the drained entries so owners can report leaks.
func (t *HandleTable[T]) Drain(release func(T)) []string {
	var labels []string
	t.Each(func(h Handle, label string, value T) {
		labels = append(labels, label)
		if release != nil {
			release(value)
		}
		_, _ = t.Remove(h)
	})
	return labels
}
