package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInterrupted is returned by Run when the caller's context is cancelled
// mid-execution. Per SPEC_FULL.md §5, an interrupt causes immediate return
// of Null rather than propagating the cancellation as a runtime error; the
// sentinel exists only so the driver can tell a genuine interruption apart
// from a clean Exit.
var ErrInterrupted = errors.New("vm: interrupted")

// pollPeriod is how many instructions the VM executes between checks of the
// interrupt context. SPEC_FULL.md §5 (grounded on funxy's own 1000
// instruction poll period in vm.go, lowered here to 256 since this frame heap
// is smaller and tail loops re-enter far more often per unit of wall time).
const pollPeriod = 256

// Loader lets the VM execute `Load` without importing the parser/codegen
// packages directly (they already depend on vm for Value/Opcode, so the
// reverse import would cycle). The driver implements Loader by wiring
// lexer -> parser -> codegen together.
type Loader interface {
	LoadChunk(path string) ([]byte, []Value, error)
}

// VM is the stack machine described in SPEC_FULL.md §4.3.
type VM struct {
	Code      []byte
	Constants []Value

	pc int

	stack []Value
	sp    int

	frames   *FrameHeap
	curFrame int

	loader Loader
	out    io.Writer

	instrCount int
}

// New creates a VM with the given operand-stack and frame-heap capacities.
func New(stackCapacity, frameCapacity int, loader Loader) *VM {
	return &VM{
		stack:    make([]Value, stackCapacity),
		frames:   NewFrameHeap(frameCapacity),
		curFrame: 0,
		loader:   loader,
		out:      os.Stdout,
	}
}

// SetOutput redirects `display` output (tests point this at a buffer).
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// Append adds a freshly compiled instruction segment to the end of the
// running stream and its constants to the end of the constant pool, per
// SPEC_FULL.md §4.4's splice-and-resume driver contract. It returns the
// absolute pc the new segment starts at.
func (vm *VM) Append(code []byte, constants []Value) int {
	startPC := len(vm.Code)
	constBase := len(vm.Constants)
	vm.Constants = append(vm.Constants, constants...)
	vm.Code = append(vm.Code, shiftCode(code, startPC, constBase)...)
	return startPC
}

// shiftCode rewrites a freshly generated segment's absolute jump/constant
// targets to account for it being appended after pcBase bytes and
// constBase constants already present, mirroring `Load`'s address-shifting
// splice in SPEC_FULL.md §4.3.
func shiftCode(code []byte, pcBase, constBase int) []byte {
	out := make([]byte, len(code))
	copy(out, code)
	i := 0
	for i < len(out) {
		op := Opcode(out[i])
		n := operandBytes[op]
		if n == 2 {
			v := int(out[i+1])<<8 | int(out[i+2])
			switch op {
			case Push, Def, Set, Get, CollectVArg:
				v += constBase
			case Jump, JumpIf, PushReturnContext, CreateClosure:
				v += pcBase
			}
			out[i+1] = byte(v >> 8)
			out[i+2] = byte(v)
		}
		i += 1 + n
	}
	return out
}

// SetEntry resets pc to start, used by the driver after appending a fresh
// top-level segment.
func (vm *VM) SetEntry(pc int) { vm.pc = pc }

// DefineGlobal binds name directly in the root frame, bypassing Def/Set
// bytecode. The REPL driver uses this for its `$n` auto-bindings: each
// result is a value already computed by a prior Run, not source text to
// compile and execute again.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.frames.SetBinding(vm.frames.Root(), name, v)
}

func (vm *VM) push(v Value) error {
	if vm.sp >= len(vm.stack) {
		return fmt.Errorf("operand stack overflow")
	}
	vm.frames.retain(v)
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (Value, error) {
	if vm.sp == 0 {
		return Value{}, fmt.Errorf("operand stack underflow")
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.frames.release(v)
	return v, nil
}

func (vm *VM) peek() Value { return vm.stack[vm.sp-1] }

func (vm *VM) readU16(at int) int {
	return int(vm.Code[at])<<8 | int(vm.Code[at+1])
}

func (vm *VM) constant(idx int) Value { return vm.Constants[idx] }

// Run executes starting at the VM's current pc until it hits Exit, returns
// an error, or ctx is cancelled. On Exit it returns the top of the operand
// stack (Null if the stack is empty).
func (vm *VM) Run(ctx context.Context) (Value, error) {
	for {
		if vm.instrCount%pollPeriod == 0 {
			select {
			case <-ctx.Done():
				return NullVal(), ErrInterrupted
			default:
			}
		}
		vm.instrCount++

		if vm.pc >= len(vm.Code) {
			return NullVal(), fmt.Errorf("pc ran off the end of the instruction stream")
		}
		op := Opcode(vm.Code[vm.pc])

		switch op {
		case Exit:
			if vm.sp > 0 {
				return vm.stack[vm.sp-1], nil
			}
			return NullVal(), nil

		case Push:
			idx := vm.readU16(vm.pc + 1)
			if err := vm.push(vm.constant(idx)); err != nil {
				return Value{}, err
			}
			vm.pc += 3

		case Pop:
			if _, err := vm.pop(); err != nil {
				return Value{}, err
			}
			vm.pc++

		case Dup:
			if vm.sp == 0 {
				return Value{}, fmt.Errorf("Dup on empty stack")
			}
			if err := vm.push(vm.peek()); err != nil {
				return Value{}, err
			}
			vm.pc++

		case Def:
			idx := vm.readU16(vm.pc + 1)
			name := vm.constant(idx).S
			vm.frames.SetBinding(vm.curFrame, name, NullVal())
			vm.pc += 3

		case Set:
			idx := vm.readU16(vm.pc + 1)
			name := vm.constant(idx).S
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if !vm.frames.Assign(vm.curFrame, name, v) {
				return Value{}, fmt.Errorf("unbound identifier %q", name)
			}
			vm.pc += 3

		case Get:
			idx := vm.readU16(vm.pc + 1)
			name := vm.constant(idx).S
			v, ok := vm.frames.Lookup(vm.curFrame, name)
			if !ok {
				return Value{}, fmt.Errorf("unbound identifier %q", name)
			}
			if err := vm.push(v); err != nil {
				return Value{}, err
			}
			vm.pc += 3

		case CollectVArg:
			idx := vm.readU16(vm.pc + 1)
			name := vm.constant(idx).S
			var collected []Value
			for vm.sp > 0 && vm.peek().Type != TContext {
				v, err := vm.pop()
				if err != nil {
					return Value{}, err
				}
				collected = append(collected, v)
			}
			// collected holds values nearest-top-first (i.e. in reverse of
			// the order the caller pushed them). Since callers push
			// arguments in reverse source order, collected is therefore in
			// source order already (collected[0] is the leftmost rest arg);
			// cons from the end back to the front so the result reads off
			// in that same natural order, not reversed.
			list := NullVal()
			for i := len(collected) - 1; i >= 0; i-- {
				list = vm.makePair(collected[i], list)
			}
			vm.frames.SetBinding(vm.curFrame, name, list)
			vm.pc += 3

		case Jump:
			vm.pc = vm.readU16(vm.pc + 1)

		case JumpIf:
			target := vm.readU16(vm.pc + 1)
			v, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if v.Truthy() {
				vm.pc = target
			} else {
				vm.pc += 3
			}

		case Load:
			pathV, err := vm.pop()
			if err != nil {
				return Value{}, err
			}
			if pathV.Type != TString {
				return Value{}, fmt.Errorf("load: argument must be a string, got %v", pathV.Type)
			}
			if vm.loader == nil {
				return Value{}, fmt.Errorf("load: no loader configured")
			}
			code, consts, err := vm.loader.LoadChunk(pathV.S)
			if err != nil {
				return Value{}, fmt.Errorf("load %q: %w", pathV.S, err)
			}
			resumePC := vm.pc + 1
			startPC := vm.Append(code, consts)
			// install a trailing Jump back to the instruction after Load
			vm.Code = append(vm.Code, byte(Jump), byte(resumePC>>8), byte(resumePC))
			if err := vm.push(NullVal()); err != nil {
				return Value{}, err
			}
			vm.pc = startPC

		case CreateClosure, PushReturnContext, Call, OptCall, Ret:
			if err := vm.execCallOp(op); err != nil {
				return Value{}, err
			}

		default:
			if err := vm.execPrimitive(op); err != nil {
				return Value{}, err
			}
			vm.pc++
		}
	}
}
