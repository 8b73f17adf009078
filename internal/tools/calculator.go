package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Calculator errors.
var (
	ErrInvalidCharacters = errors.New("invalid characters in expression")
	ErrEmptyExpression   = errors.New("empty expression")
	ErrNotFinite         = errors.New("result is not a finite number")
)

const calculatorAlphabet = "0123456789+-*/()., "

// Calculator evaluates arithmetic expressions. Only digits, the four
// operators, parentheses, decimal points and spaces are accepted, so no
// identifier or function call can reach the evaluator.
//
// The most recently used compiled programs are cached; a Calculator is
// safe for concurrent use.
type Calculator struct {
	cache *lru.Cache[string, *vm.Program]
}

// DefaultProgramCacheSize is the number of compiled expressions a
// Calculator keeps.
const DefaultProgramCacheSize = 256

// NewCalculator creates a Calculator with the default program cache size.
func NewCalculator() *Calculator {
	return NewCalculatorWithCacheSize(DefaultProgramCacheSize)
}

// NewCalculatorWithCacheSize creates a Calculator that keeps at most size
// compiled programs. Size must be positive.
func NewCalculatorWithCacheSize(size int) *Calculator {
	cache, err := lru.New[string, *vm.Program](size)
	if err != nil {
		panic(fmt.Sprintf("tools: calculator cache: %v", err))
	}
	return &Calculator{cache: cache}
}

// CachedPrograms returns the number of compiled programs held.
func (c *Calculator) CachedPrograms() int {
	return c.cache.Len()
}

// Evaluate returns the value of expression.
func (c *Calculator) Evaluate(expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, ErrEmptyExpression
	}
	if i := strings.IndexFunc(expression, func(r rune) bool {
		return !strings.ContainsRune(calculatorAlphabet, r)
	}); i >= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCharacters, expression[i:i+1])
	}

	prg, err := c.program(expression)
	if err != nil {
		return 0, err
	}
	out, err := vm.Run(prg, map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", expression, err)
	}

	var v float64
	switch n := out.(type) {
	case int:
		v = float64(n)
	case float64:
		v = n
	default:
		return 0, fmt.Errorf("evaluate %q: non-numeric result %T", expression, out)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("evaluate %q: %w", expression, ErrNotFinite)
	}
	return v, nil
}

func (c *Calculator) program(expression string) (*vm.Program, error) {
	if prg, ok := c.cache.Get(expression); ok {
		return prg, nil
	}
	prg, err := expr.Compile(expression, expr.Env(map[string]any{}))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	c.cache.Add(expression, prg)
	return prg, nil
}

// FormatNumber renders v without a trailing ".0" for whole numbers.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
