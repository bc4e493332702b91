package value

import "github.com/josharian/intern"

// ObjType tags the payload kind of a heap object. Strings are the
// only heap object today; the tag exists so the representation can
// grow without touching ObjRef's meaning.
type ObjType int

const (
	ObjString ObjType = iota
)

// Obj is a heap object: a type tag plus its payload. It is owned by a
// Heap's object table; code never holds an *Obj directly across a
// Reset.
type Obj struct {
	Type ObjType
	Str  string
}

// ObjRef is a non-owning handle into a Heap's object table: the index
// of the object in that table, starting at 0 for the first string
// interned. Use Heap.InternString to obtain one.
type ObjRef int

// Heap owns every heap allocation (currently: interned strings) made
// during one interpret call, plus the content-keyed table used to
// guarantee that equal string contents share one ObjRef. All ObjRefs
// it hands out are invalidated by Reset.
//
// Every string handed to InternString is first canonicalized with
// josharian/intern so that repeated identical literals across many
// compiles (e.g. many REPL lines in one process) share one underlying
// Go string header before wisp's own table gives it a per-run handle;
// Heap.Reset still clears the per-run table, since interning must not
// leak ObjRef identity across a Runtime.Reset (see data model lifecycle).
type Heap struct {
	objects []Obj
	strings map[string]ObjRef
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{strings: make(map[string]ObjRef)}
}

// InternString returns the ObjRef for s, allocating and interning a
// new heap object only if this Heap hasn't already seen this content.
func (h *Heap) InternString(s string) ObjRef {
	canonical := intern.String(s)
	if ref, ok := h.strings[canonical]; ok {
		return ref
	}
	ref := ObjRef(len(h.objects))
	h.objects = append(h.objects, Obj{Type: ObjString, Str: canonical})
	h.strings[canonical] = ref
	return ref
}

// Concat interns the concatenation of two already-interned strings,
// producing a single shared ObjRef for any future literal with the
// same resulting content.
func (h *Heap) Concat(a, b ObjRef) ObjRef {
	return h.InternString(h.Get(a).Str + h.Get(b).Str)
}

// Get dereferences ref. It panics on an invalid handle: a dangling
// ObjRef surviving a Reset is a programming error in the VM, not a
// recoverable runtime condition.
func (h *Heap) Get(ref ObjRef) *Obj {
	return &h.objects[ref]
}

// Reset frees every heap object and empties the intern table. Any
// ObjRef obtained before Reset must not be used afterward.
func (h *Heap) Reset() {
	h.objects = h.objects[:0]
	for k := range h.strings {
		delete(h.strings, k)
	}
}

// Len reports how many heap objects are currently live.
func (h *Heap) Len() int { return len(h.objects) }
