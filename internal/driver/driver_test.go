package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-lang/wisp/internal/driver"
	"github.com/wisp-lang/wisp/internal/vm"
)

func newDriver(t *testing.T) *driver.Driver {
	t.Helper()
	return driver.New(4096, 1024)
}

// TestDriver_SixEndToEndScenarios exercises the scenarios from SPEC_FULL.md
// §8 through the real lexer -> parser -> macro expander -> codegen -> VM
// pipeline, one Driver per scenario.
func TestDriver_SixEndToEndScenarios(t *testing.T) {
	t.Run("simple arithmetic", func(t *testing.T) {
		d := newDriver(t)
		result, err := d.Eval(context.Background(), `(+ 1 2)`)
		require.NoError(t, err)
		assert.Equal(t, vm.IntVal(3), result)
	})

	t.Run("factorial of 10", func(t *testing.T) {
		d := newDriver(t)
		_, err := d.Eval(context.Background(), `
			(define (fact n)
			  (if (= n 0) 1 (* n (fact (- n 1)))))
		`)
		require.NoError(t, err)

		result, err := d.Eval(context.Background(), `(fact 10)`)
		require.NoError(t, err)
		assert.Equal(t, vm.IntVal(3628800), result)
	})

	t.Run("tail recursive loop to 100000 without overflow", func(t *testing.T) {
		d := newDriver(t)
		_, err := d.Eval(context.Background(), `
			(define (count-down n)
			  (if (= n 0) 'done (count-down (- n 1))))
		`)
		require.NoError(t, err)

		result, err := d.Eval(context.Background(), `(count-down 100000)`)
		require.NoError(t, err)
		assert.Equal(t, vm.SymbolVal("done"), result)
	})

	t.Run("pair mutation via set-car!", func(t *testing.T) {
		d := newDriver(t)
		_, err := d.Eval(context.Background(), `(define p (cons 1 2))`)
		require.NoError(t, err)
		_, err = d.Eval(context.Background(), `(set-car! p 99)`)
		require.NoError(t, err)

		result, err := d.Eval(context.Background(), `(car p)`)
		require.NoError(t, err)
		assert.Equal(t, vm.IntVal(99), result)
	})

	t.Run("hygienic swap! macro", func(t *testing.T) {
		d := newDriver(t)
		_, err := d.Eval(context.Background(), `
			(define-syntax swap!
			  (syntax-rules ()
			    ((_ a b)
			     (let ((tmp a))
			       (set! a b)
			       (set! b tmp)))))
		`)
		require.NoError(t, err)

		// A user binding named `tmp`, live across the swap, proves the macro's
		// own internal `tmp` is hygienically renamed rather than capturing it.
		_, err = d.Eval(context.Background(), `
			(define x 1)
			(define tmp 2)
		`)
		require.NoError(t, err)
		_, err = d.Eval(context.Background(), `(swap! x tmp)`)
		require.NoError(t, err)

		xVal, err := d.Eval(context.Background(), `x`)
		require.NoError(t, err)
		assert.Equal(t, vm.IntVal(2), xVal)

		tmpVal, err := d.Eval(context.Background(), `tmp`)
		require.NoError(t, err)
		assert.Equal(t, vm.IntVal(1), tmpVal)
	})

	t.Run("apply spreads a list onto a procedure", func(t *testing.T) {
		// apply's proc argument is evaluated as an ordinary value, so it must
		// be a closure, not a built-in operator name -- built-ins are
		// inlined at compile time and have no first-class runtime value.
		d := newDriver(t)
		_, err := d.Eval(context.Background(), `(define (add4 a b c d) (+ (+ a b) (+ c d)))`)
		require.NoError(t, err)

		result, err := d.Eval(context.Background(), `(apply add4 1 2 (cons 3 (cons 4 '())))`)
		require.NoError(t, err)
		assert.Equal(t, vm.IntVal(10), result)
	})
}

func TestDriver_EvalREPL_BindsDollarNames(t *testing.T) {
	d := newDriver(t)

	_, name1, err := d.EvalREPL(context.Background(), `(+ 1 2)`)
	require.NoError(t, err)
	assert.Equal(t, "$1", name1)

	result, err := d.Eval(context.Background(), `$1`)
	require.NoError(t, err)
	assert.Equal(t, vm.IntVal(3), result)

	_, name2, err := d.EvalREPL(context.Background(), `(+ $1 10)`)
	require.NoError(t, err)
	assert.Equal(t, "$2", name2)

	result, err = d.Eval(context.Background(), `$2`)
	require.NoError(t, err)
	assert.Equal(t, vm.IntVal(13), result)
}

func TestDriver_Load_SplicesChunkAndPreservesDefines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.wisp")
	require.NoError(t, os.WriteFile(path, []byte(`(define answer 42)`), 0o644))

	d := newDriver(t)
	result, err := d.Eval(context.Background(), `(load "`+path+`")`)
	require.NoError(t, err)
	assert.Equal(t, vm.NullVal(), result)

	answer, err := d.Eval(context.Background(), `answer`)
	require.NoError(t, err)
	assert.Equal(t, vm.IntVal(42), answer)
}

func TestDriver_CompileErrorDoesNotCorruptSession(t *testing.T) {
	d := newDriver(t)
	_, err := d.Eval(context.Background(), `(+ 1`)
	require.Error(t, err)

	result, err := d.Eval(context.Background(), `(+ 1 1)`)
	require.NoError(t, err)
	assert.Equal(t, vm.IntVal(2), result)
}
