package vm

import "fmt"

// noParent marks a frame with no lexical parent (only slot 0, the root
// frame, has this).
const noParent = -1

// Frame is an environment record: a binding table plus a pointer to its
// lexically enclosing frame and a reference count.
type Frame struct {
	Parent   int
	Bindings map[string]Value
	RefCount int
	Live     bool
}

// FrameHeap is the fixed-capacity slotted array described in SPEC_FULL.md
// §3. Slot 0 is the root (global) frame, created live with RefCount 1 and
// no parent.
type FrameHeap struct {
	frames []Frame
}

// NewFrameHeap allocates a frame heap with room for capacity frames.
func NewFrameHeap(capacity int) *FrameHeap {
	fh := &FrameHeap{frames: make([]Frame, capacity)}
	fh.frames[0] = Frame{Parent: noParent, Bindings: make(map[string]Value), RefCount: 1, Live: true}
	return fh
}

// Get returns the frame at idx.
func (fh *FrameHeap) Get(idx int) *Frame {
	return &fh.frames[idx]
}

// Root is the index of the global frame.
func (fh *FrameHeap) Root() int { return 0 }

// Alloc installs a new, empty, live frame with the given lexical parent in
// the first free slot and returns its index. RefCount starts at 1: the
// frame's own "currently active call frame" contribution from the Frame
// ref_count definition in SPEC_FULL.md §3. This bonus is local to the
// frame itself and is never propagated up the parent chain (point (ii) of
// the definition, as opposed to the closure-reachability contribution of
// point (i), which IncRefChain/DecRefChain implement below).
func (fh *FrameHeap) Alloc(parent int) (int, error) {
	for i := 1; i < len(fh.frames); i++ {
		if !fh.frames[i].Live {
			fh.frames[i] = Frame{Parent: parent, Bindings: make(map[string]Value), RefCount: 1, Live: true}
			return i, nil
		}
	}
	return 0, fmt.Errorf("frame heap exhausted (capacity %d)", len(fh.frames))
}

// AllocAt installs a new, empty, live frame at a specific slot, overwriting
// whatever was there. Used by OptCall when it reuses the current frame.
func (fh *FrameHeap) AllocAt(idx, parent int) {
	fh.frames[idx] = Frame{Parent: parent, Bindings: make(map[string]Value), RefCount: 1, Live: true}
}

// SafeToReuse reports whether idx's frame is kept alive only by the active
// call itself: its ref count minus the number of closures bound inside it
// that point back to it equals 1 (the bonus from being active, with no
// other holder). This is the OptCall reuse check from SPEC_FULL.md §4.3 /
// §9 ("a pragmatic stand-in for a precise escape analysis").
func (fh *FrameHeap) SafeToReuse(idx int) bool {
	f := &fh.frames[idx]
	selfRefs := 0
	for _, v := range f.Bindings {
		if v.Type == TClosure && v.Fr == idx {
			selfRefs++
		}
	}
	return f.RefCount-selfRefs == 1
}

// IncRefChain adds one to the ref count of idx and of every frame reachable
// by following Parent pointers from idx up to (and including) the root.
// Grounded on original_source/src/vm.rs's update_ref_cnt, which walks the
// entire ancestor chain rather than only the captured frame, resolving
// SPEC_FULL.md §3's ambiguity about how far propagation extends.
func (fh *FrameHeap) IncRefChain(idx int) {
	for idx != noParent {
		fh.frames[idx].RefCount++
		idx = fh.frames[idx].Parent
	}
}

// DecRefChain subtracts one from the ref count of idx and every ancestor,
// freeing any frame whose count reaches zero.
func (fh *FrameHeap) DecRefChain(idx int) {
	for idx != noParent {
		next := fh.frames[idx].Parent
		fh.frames[idx].RefCount--
		if fh.frames[idx].RefCount <= 0 && idx != 0 {
			fh.freeFrame(idx)
		}
		idx = next
	}
}

// Deactivate removes the local "currently active call frame" bonus a frame
// was given by Alloc/AllocAt. Ret calls this on the frame it is leaving;
// OptCall calls it on the frame slot it is about to discard in favor of a
// freshly allocated one. If this was the frame's last reference, it is
// freed (its own bindings released in turn).
func (fh *FrameHeap) Deactivate(idx int) {
	if idx == 0 {
		return // the root frame is never deactivated
	}
	fh.frames[idx].RefCount--
	if fh.frames[idx].RefCount <= 0 {
		fh.freeFrame(idx)
	}
}

// freeFrame releases every value a dying frame holds (cascading through any
// closures it contains) and marks the slot free. Live is cleared and the
// bindings detached before releasing them, so a self-referential closure
// (one whose captured frame is idx itself) that triggers a reentrant call
// to freeFrame(idx) while this one is still unwinding sees Live already
// false and returns immediately instead of double-freeing.
func (fh *FrameHeap) freeFrame(idx int) {
	f := &fh.frames[idx]
	if !f.Live {
		return
	}
	f.Live = false
	bindings := f.Bindings
	f.Bindings = nil
	for _, v := range bindings {
		fh.release(v)
	}
}

// ForceFree destroys idx's frame immediately, bypassing the ref-count
// check. OptCall uses this to discard the current frame when SafeToReuse
// reported that the only holders left are the active-call bonus and
// closures bound inside the frame pointing back at itself — both of which
// are going away along with the frame regardless of their exact count.
func (fh *FrameHeap) ForceFree(idx int) {
	fh.freeFrame(idx)
}

// retain increments ref counts for any Closure reachable directly through
// v (not recursively through pairs: a pair's own retain/release walks its
// elements explicitly at the call sites that mutate it).
func (fh *FrameHeap) retain(v Value) {
	if v.Type == TClosure {
		fh.IncRefChain(v.Fr)
	}
}

func (fh *FrameHeap) release(v Value) {
	if v.Type == TClosure {
		fh.DecRefChain(v.Fr)
	}
}

// SetBinding assigns name in frame idx to v, releasing whatever value it
// held (if any) and retaining v, per SPEC_FULL.md's reference-counting
// rule for values entering/leaving a frame binding.
func (fh *FrameHeap) SetBinding(idx int, name string, v Value) {
	f := &fh.frames[idx]
	if old, ok := f.Bindings[name]; ok {
		fh.release(old)
	}
	fh.retain(v)
	f.Bindings[name] = v
}

// Lookup walks the parent chain starting at idx looking for name.
func (fh *FrameHeap) Lookup(idx int, name string) (Value, bool) {
	for idx != noParent {
		f := &fh.frames[idx]
		if v, ok := f.Bindings[name]; ok {
			return v, true
		}
		idx = f.Parent
	}
	return Value{}, false
}

// Assign walks the parent chain starting at idx and overwrites the nearest
// binding of name, reports whether one was found.
func (fh *FrameHeap) Assign(idx int, name string, v Value) bool {
	for idx != noParent {
		f := &fh.frames[idx]
		if old, ok := f.Bindings[name]; ok {
			fh.release(old)
			fh.retain(v)
			f.Bindings[name] = v
			return true
		}
		idx = f.Parent
	}
	return false
}
