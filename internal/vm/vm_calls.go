package vm

import "fmt"

// execCallOp implements CreateClosure, PushReturnContext, Call, OptCall and
// Ret: the closure/call/return protocol of SPEC_FULL.md §4.3. Each branch
// is responsible for advancing vm.pc itself, matching the Jump-style
// in-place pc updates used elsewhere in the main loop.
func (vm *VM) execCallOp(op Opcode) error {
	switch op {
	case CreateClosure:
		target := vm.readU16(vm.pc + 1)
		if err := vm.push(ClosureVal(target, vm.curFrame)); err != nil {
			return err
		}
		vm.pc += 3
		return nil

	case PushReturnContext:
		target := vm.readU16(vm.pc + 1)
		if err := vm.push(ContextVal(target, vm.curFrame)); err != nil {
			return err
		}
		vm.pc += 3
		return nil

	case Call:
		return vm.doCall(false)

	case OptCall:
		return vm.doCall(true)

	case Ret:
		return vm.doRet()
	}
	return fmt.Errorf("unreachable call opcode %v", op)
}

// doCall implements both the non-tail Call (tail=false) and tail OptCall
// (tail=true) protocols. In both cases the callee closure is the value
// on top of the operand stack (arguments, and for Call the return
// context, were pushed underneath it by the code the generator emitted).
func (vm *VM) doCall(tail bool) error {
	closureV, err := vm.pop()
	if err != nil {
		return err
	}
	if closureV.Type != TClosure {
		return fmt.Errorf("attempt to call a non-procedure value")
	}
	parent := closureV.Fr
	codeAddr := int(closureV.I)

	if tail && vm.frames.SafeToReuse(vm.curFrame) {
		vm.frames.ForceFree(vm.curFrame)
		vm.frames.AllocAt(vm.curFrame, parent)
		vm.pc = codeAddr
		return nil
	}

	newIdx, err := vm.frames.Alloc(parent)
	if err != nil {
		return err
	}
	if tail {
		// This call escapes (SafeToReuse was false): behave like an ordinary
		// Call that allocates a fresh frame, per SPEC_FULL.md §4.3's OptCall
		// fallback. The old frame loses its active-call bonus but survives
		// (a surviving closure still needs it as lexical parent).
		vm.frames.Deactivate(vm.curFrame)
	}
	vm.curFrame = newIdx
	vm.pc = codeAddr
	return nil
}

// doRet implements Ret: it deactivates the returning frame, pops the
// operand stack until it finds the saved Context, restores pc/curFrame
// from it, and re-pushes the return value.
func (vm *VM) doRet() error {
	retVal, err := vm.pop()
	if err != nil {
		return err
	}

	returningFrame := vm.curFrame
	vm.frames.Deactivate(returningFrame)

	for {
		if vm.sp == 0 {
			return fmt.Errorf("Ret with no saved return context on the operand stack")
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.Type == TContext {
			vm.pc = int(v.I)
			vm.curFrame = v.Fr
			break
		}
	}

	return vm.push(retVal)
}
