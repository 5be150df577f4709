package scripted

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PanMenel/racore/engine"
)

// ErrBadCondition is returned for a trigger definition that cannot be
// parsed.
var ErrBadCondition = errors.New("invalid condition")

type conditionFlag int

const (
	flagNone conditionFlag = iota
	flagMeasured
	flagResetIf
	flagPauseIf
)

type comparator int

const (
	cmpNone comparator = iota
	cmpEq
	cmpNe
	cmpLt
	cmpLe
	cmpGt
	cmpGe
)

type operandKind int

const (
	operandConst operandKind = iota
	operandMem
	operandDelta
)

type operand struct {
	kind    operandKind
	address uint32
	size    int
	value   uint32
}

type condition struct {
	flag   conditionFlag
	left   operand
	cmp    comparator
	right  operand
	target uint32
	hits   uint32
}

// trigger is a compiled MemAddr string: conditions joined by '_'. Each
// condition is [flag:]operand[cmp operand][.hits.] where flag is M
// (measured), R (reset if) or P (pause if) and a memory operand is
// 0xH (8-bit), 0x (16-bit) or 0xX (32-bit) followed by a hex address,
// optionally prefixed with d for the previous frame's value. Constants
// are decimal or h-prefixed hex.
type trigger struct {
	conditions []condition
	measured   int
	prev       map[uint32]uint32
}

func parseTrigger(memAddr string) (*trigger, error) {
	t := &trigger{measured: -1, prev: make(map[uint32]uint32)}
	if strings.TrimSpace(memAddr) == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadCondition)
	}

	for i, part := range strings.Split(memAddr, "_") {
		c, err := parseCondition(part)
		if err != nil {
			return nil, fmt.Errorf("%w: condition %d %q: %v", ErrBadCondition, i+1, part, err)
		}
		if c.flag == flagMeasured {
			if t.measured >= 0 {
				return nil, fmt.Errorf("%w: more than one measured condition", ErrBadCondition)
			}
			t.measured = len(t.conditions)
		}
		t.conditions = append(t.conditions, c)
	}
	return t, nil
}

func parseCondition(s string) (condition, error) {
	var c condition

	if len(s) > 2 && s[1] == ':' {
		switch s[0] {
		case 'M':
			c.flag = flagMeasured
		case 'R':
			c.flag = flagResetIf
		case 'P':
			c.flag = flagPauseIf
		default:
			return c, fmt.Errorf("unknown flag %q", s[0])
		}
		s = s[2:]
	}

	if strings.HasSuffix(s, ".") {
		open := strings.LastIndex(s[:len(s)-1], ".")
		if open < 0 {
			return c, errors.New("unterminated hit count")
		}
		n, err := strconv.ParseUint(s[open+1:len(s)-1], 10, 32)
		if err != nil {
			return c, fmt.Errorf("hit count: %v", err)
		}
		c.target = uint32(n)
		s = s[:open]
	}

	left, rest, err := parseOperand(s)
	if err != nil {
		return c, err
	}
	c.left = left
	if rest == "" {
		return c, errors.New("missing comparison")
	}

	c.cmp, rest = parseComparator(rest)
	if c.cmp == cmpNone {
		return c, fmt.Errorf("unknown comparator at %q", rest)
	}
	right, rest, err := parseOperand(rest)
	if err != nil {
		return c, err
	}
	if rest != "" {
		return c, fmt.Errorf("trailing %q", rest)
	}
	c.right = right
	return c, nil
}

func parseComparator(s string) (comparator, string) {
	for _, op := range []struct {
		text string
		cmp  comparator
	}{
		{"!=", cmpNe}, {"<=", cmpLe}, {">=", cmpGe},
		{"=", cmpEq}, {"<", cmpLt}, {">", cmpGt},
	} {
		if strings.HasPrefix(s, op.text) {
			return op.cmp, s[len(op.text):]
		}
	}
	return cmpNone, s
}

func parseOperand(s string) (operand, string, error) {
	var op operand

	if strings.HasPrefix(s, "d0x") {
		op.kind = operandDelta
		s = s[1:]
	}

	if strings.HasPrefix(s, "0x") {
		if op.kind != operandDelta {
			op.kind = operandMem
		}
		s = s[2:]
		switch {
		case strings.HasPrefix(s, "H"):
			op.size, s = 1, s[1:]
		case strings.HasPrefix(s, "X"):
			op.size, s = 4, s[1:]
		case strings.HasPrefix(s, " "):
			op.size, s = 2, s[1:]
		default:
			op.size = 2
		}
		n := hexPrefix(s)
		if n == 0 {
			return op, s, errors.New("missing address")
		}
		addr, err := strconv.ParseUint(s[:n], 16, 32)
		if err != nil {
			return op, s, err
		}
		op.address = uint32(addr)
		return op, s[n:], nil
	}

	if op.kind == operandDelta {
		return op, s, errors.New("delta of a constant")
	}

	base, digits := 10, s
	if strings.HasPrefix(s, "h") {
		base, digits = 16, s[1:]
	}
	n := 0
	for n < len(digits) && isDigit(digits[n], base) {
		n++
	}
	if n == 0 {
		return op, s, fmt.Errorf("bad operand %q", s)
	}
	v, err := strconv.ParseUint(digits[:n], base, 32)
	if err != nil {
		return op, s, err
	}
	op.value = uint32(v)
	return op, digits[n:], nil
}

func hexPrefix(s string) int {
	n := 0
	for n < len(s) && isDigit(s[n], 16) {
		n++
	}
	return n
}

func isDigit(b byte, base int) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case base == 16 && (b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'):
		return true
	}
	return false
}

// evaluate runs one frame and reports whether every condition holds.
func (t *trigger) evaluate(read engine.MemoryReader) bool {
	cur := make(map[uint32]uint32, len(t.prev))
	value := func(op operand) uint32 {
		switch op.kind {
		case operandMem:
			v := readSized(read, op.address, op.size)
			cur[op.address] = v
			return v
		case operandDelta:
			v := readSized(read, op.address, op.size)
			cur[op.address] = v
			if prev, ok := t.prev[op.address]; ok {
				return prev
			}
			return v
		default:
			return op.value
		}
	}
	defer func() { t.prev = cur }()

	for i := range t.conditions {
		c := &t.conditions[i]
		if c.flag == flagPauseIf && c.test(value) {
			return false
		}
	}

	for i := range t.conditions {
		c := &t.conditions[i]
		if c.flag == flagResetIf && c.test(value) {
			t.resetHits()
			return false
		}
	}

	all := true
	for i := range t.conditions {
		c := &t.conditions[i]
		if c.flag == flagResetIf || c.flag == flagPauseIf {
			continue
		}
		ok := c.test(value)
		if c.target > 0 {
			if ok && c.hits < c.target {
				c.hits++
			}
			ok = c.hits >= c.target
		}
		if !ok {
			all = false
		}
	}
	return all
}

func (c *condition) test(value func(operand) uint32) bool {
	l, r := value(c.left), value(c.right)
	switch c.cmp {
	case cmpEq:
		return l == r
	case cmpNe:
		return l != r
	case cmpLt:
		return l < r
	case cmpLe:
		return l <= r
	case cmpGt:
		return l > r
	case cmpGe:
		return l >= r
	}
	return false
}

// progress returns the measured condition's value and target. A hit
// counted condition measures hits; otherwise the left operand is compared
// against a constant right operand.
func (t *trigger) progress(read engine.MemoryReader) (value, target uint32, ok bool) {
	if t.measured < 0 {
		return 0, 0, false
	}
	c := t.conditions[t.measured]
	if c.target > 0 {
		return c.hits, c.target, true
	}
	if c.right.kind != operandConst {
		return 0, 0, false
	}
	target = c.right.value
	switch c.left.kind {
	case operandConst:
		value = c.left.value
	default:
		value = readSized(read, c.left.address, c.left.size)
	}
	if value > target {
		value = target
	}
	return value, target, true
}

// measuredTarget returns the measured condition's target without reading
// memory.
func (t *trigger) measuredTarget() (bool, uint32) {
	if t.measured < 0 {
		return false, 0
	}
	c := t.conditions[t.measured]
	if c.target > 0 {
		return true, c.target
	}
	if c.right.kind != operandConst {
		return false, 0
	}
	return true, c.right.value
}

func (t *trigger) resetHits() {
	for i := range t.conditions {
		t.conditions[i].hits = 0
	}
}

func (t *trigger) reset() {
	t.resetHits()
	t.prev = make(map[uint32]uint32)
}

func readSized(read engine.MemoryReader, address uint32, size int) uint32 {
	var buf [4]byte
	if read == nil || read(address, buf[:size]) != uint32(size) {
		return 0
	}
	switch size {
	case 1:
		return uint32(buf[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf[:2]))
	default:
		return binary.LittleEndian.Uint32(buf[:4])
	}
}
