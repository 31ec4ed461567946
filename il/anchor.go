package il

import "fmt"

// Matcher selects instructions.
type Matcher func(Instruction) bool

// OpIs matches any instruction with opcode op.
func OpIs(op Opcode) Matcher {
	return func(in Instruction) bool {
		return in.Op == op
	}
}

// OpWith matches instructions with opcode op and an operand equal to arg.
func OpWith(op Opcode, arg Operand) Matcher {
	return func(in Instruction) bool {
		return in.Op == op && in.Operand.Equal(arg)
	}
}

// CallTo matches calls to the routine id.
func CallTo(id RoutineID) Matcher {
	return OpWith(CALL, Call(id))
}

// Where wraps an arbitrary predicate.
func Where(fn func(Instruction) bool) Matcher {
	return fn
}

// Locate finds the first instruction matching m, scanning the whole stream
// in direction dir, and returns its index moved by offset.
//
// A missing anchor means the routine does not have the shape the patch was
// written against, so this is always an error and never a silent skip.
func Locate(s *Stream, m Matcher, offset int, dir Direction) (int, error) {
	start := 0
	if dir == Backward {
		start = s.Len() - 1
	}
	i := s.Find(m, start, dir)
	if i == NotFound {
		return NotFound, ErrAnchorNotFound
	}
	i += offset
	if i < 0 || i >= s.Len() {
		return NotFound, fmt.Errorf("%w: offset %d moves match out of bounds (index %d, length %d)", ErrAnchorNotFound, offset, i, s.Len())
	}
	return i, nil
}

// LocateAll returns the index of every instruction matching m, in stream
// order. It fails like Locate when there are none.
func LocateAll(s *Stream, m Matcher) ([]int, error) {
	var found []int
	for i := s.Find(m, 0, Forward); i != NotFound; i = s.Find(m, i+1, Forward) {
		found = append(found, i)
	}
	if len(found) == 0 {
		return nil, ErrAnchorNotFound
	}
	return found, nil
}
