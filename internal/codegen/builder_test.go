package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-lang/wisp/internal/vm"
)

// decode walks a flattened instruction stream and returns the pc each
// instruction starts at alongside its opcode, so tests can assert on jump
// targets without hand-computing byte offsets.
func decode(t *testing.T, code []byte) map[int]vm.Opcode {
	t.Helper()
	at := map[int]vm.Opcode{}
	pc := 0
	for pc < len(code) {
		op := vm.Opcode(code[pc])
		at[pc] = op
		pc += vm.InstrLen(op)
	}
	require.Equal(t, len(code), pc, "instruction stream decodes to an exact length, no trailing partial instruction")
	return at
}

func operand16(code []byte, pc int) int {
	return int(code[pc+1])<<8 | int(code[pc+2])
}

func TestBuild_BackwardJumpResolvesToItsMarkedPosition(t *testing.T) {
	b := NewBuilder()
	top := b.newLabel()
	b.markLabel(top)
	b.emit(vm.Pop)
	b.emitJump(vm.Jump, top)

	code, _, err := b.Build(false)
	require.NoError(t, err)

	instrs := decode(t, code)
	assert.Equal(t, vm.Pop, instrs[0])
	assert.Equal(t, vm.Jump, instrs[1])
	assert.Equal(t, 0, operand16(code, 1), "Jump's backward target is the Pop at pc 0, where the label was marked")
}

func TestBuild_ForwardJumpResolvesToItsMarkedPosition(t *testing.T) {
	b := NewBuilder()
	after := b.newLabel()
	b.emitJump(vm.JumpIf, after)
	b.emit(vm.Pop)
	b.markLabel(after)
	b.emit(vm.Not)

	code, _, err := b.Build(false)
	require.NoError(t, err)

	instrs := decode(t, code)
	assert.Equal(t, vm.JumpIf, instrs[0])
	jumpIfLen := vm.InstrLen(vm.JumpIf)
	popLen := vm.InstrLen(vm.Pop)
	wantTarget := jumpIfLen + popLen
	assert.Equal(t, wantTarget, operand16(code, 0), "JumpIf's forward target is the Not placed after the skipped Pop")
	assert.Equal(t, vm.Not, instrs[wantTarget])
}

// TestBuild_NoUnresolvedPlaceholdersSurviveAcrossManyLabels exercises a
// handful of forward and backward labels at once (mimicking the jump
// topology an if/cond/loop lowering produces) and checks every emitted Jump
// operand names an instruction boundary that actually got marked, rather
// than a stray, never-resolved offset.
func TestBuild_NoUnresolvedPlaceholdersSurviveAcrossManyLabels(t *testing.T) {
	b := NewBuilder()

	loopTop := b.newLabel()
	exitLoop := b.newLabel()
	skipElse := b.newLabel()

	b.markLabel(loopTop)
	b.emit(vm.Dup)
	b.emitJump(vm.JumpIf, skipElse)
	b.emit(vm.Pop)
	b.emitJump(vm.Jump, exitLoop)
	b.markLabel(skipElse)
	b.emit(vm.Not)
	b.emitJump(vm.Jump, loopTop)
	b.markLabel(exitLoop)
	b.emit(vm.Pop)

	code, _, err := b.Build(false)
	require.NoError(t, err)

	instrs := decode(t, code)
	boundaries := make(map[int]bool, len(instrs))
	for pc := range instrs {
		boundaries[pc] = true
	}
	for pc, op := range instrs {
		switch op {
		case vm.Jump, vm.JumpIf:
			target := operand16(code, pc)
			assert.True(t, boundaries[target], "jump at pc %d targets %d, which isn't an instruction boundary", pc, target)
		}
	}
}

func TestBuild_UnmarkedLabelErrors(t *testing.T) {
	b := NewBuilder()
	dangling := b.newLabel()
	b.emitJump(vm.Jump, dangling)

	_, _, err := b.Build(false)
	require.Error(t, err)
}

func TestBuild_MainAppendsExit(t *testing.T) {
	b := NewBuilder()
	b.emit(vm.Pop)

	code, _, err := b.Build(true)
	require.NoError(t, err)

	instrs := decode(t, code)
	assert.Equal(t, vm.Pop, instrs[0])
	assert.Equal(t, vm.Exit, instrs[vm.InstrLen(vm.Pop)])
}

func TestResolve_HygieneExactContextBeatsProximity(t *testing.T) {
	b := NewBuilder()
	b.def("tmp", 0) // a global, permanent (no scope open)

	b.beginScope()
	b.def("tmp", 5) // a macro-introduced local shadowing the same surface name
	assert.Equal(t, "tmp~5", b.resolve("tmp", 5), "the template's own reference to its local resolves by exact context match")
	assert.Equal(t, "tmp", b.resolve("tmp", 0), "a use-site reference substituted in with context 0 finds the global by exact match, not the nearer shadow")
	b.endScope()

	assert.Equal(t, "tmp", b.resolve("tmp", 0))
}

func TestResolve_FallsBackToTopOfStackWhenNoExactContext(t *testing.T) {
	b := NewBuilder()
	b.def("helper", 0)

	b.beginScope()
	b.def("helper", 3)
	assert.Equal(t, "helper~3", b.resolve("helper", 9), "no entry for ctx 9, so resolve falls back to the innermost binding")
	b.endScope()

	assert.Equal(t, "helper", b.resolve("helper", 9), "once the inner scope closes, the same fallback now lands on the global")
}

func TestResolve_UnboundNameFallsBackToPlainKey(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, "undefined-thing", b.resolve("undefined-thing", 7))
}

func TestIsBound(t *testing.T) {
	b := NewBuilder()
	assert.False(t, b.isBound("x"))
	b.def("x", 0)
	assert.True(t, b.isBound("x"))
}
