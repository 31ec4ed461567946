package il

import "fmt"

// NotFound is returned by Find when nothing matches.
const NotFound = -1

// Direction is the order in which Find and Locate scan a stream.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// LabelPlacement decides what happens to labels on the instruction an insert
// lands in front of. The zero value is invalid; callers must choose.
type LabelPlacement int

const (
	_ LabelPlacement = iota

	// KeepLabels leaves the labels on the original instruction, so jumps to
	// it skip the inserted code.
	KeepLabels

	// MoveLabels moves the labels to the first inserted instruction, so
	// jumps to the original instruction run the inserted code first.
	MoveLabels
)

// Stream is the editable body of one routine.
type Stream struct {
	arity     int
	locals    []ValueKind
	code      []Instruction
	labels    []*Label
	nextLabel int
}

// NewStream creates an empty body for a routine taking arity arguments and
// using numLocals local slots of its own.
func NewStream(arity, numLocals int) *Stream {
	return &Stream{
		arity:  arity,
		locals: make([]ValueKind, numLocals),
	}
}

// Arity is the number of arguments the routine takes.
func (s *Stream) Arity() int {
	return s.arity
}

// Len returns the number of instructions.
func (s *Stream) Len() int {
	return len(s.code)
}

// At returns a copy of the instruction at index. It panics if index is out
// of range.
func (s *Stream) At(index int) Instruction {
	return s.code[index].copy()
}

// Instructions returns a copy of every instruction.
func (s *Stream) Instructions() []Instruction {
	out := make([]Instruction, len(s.code))
	for i, ins := range s.code {
		out[i] = ins.copy()
	}
	return out
}

// Append adds instructions at the end of the stream.
func (s *Stream) Append(ins ...Instruction) error {
	return s.InsertRange(len(s.code), ins, KeepLabels)
}

// Find returns the index of the first instruction matching m, scanning from
// from in direction dir, or NotFound.
func (s *Stream) Find(m Matcher, from int, dir Direction) int {
	if from < 0 || from >= len(s.code) {
		return NotFound
	}
	switch dir {
	case Forward:
		for i := from; i < len(s.code); i++ {
			if m(s.code[i]) {
				return i
			}
		}
	case Backward:
		for i := from; i >= 0; i-- {
			if m(s.code[i]) {
				return i
			}
		}
	}
	return NotFound
}

// InsertRange inserts ins before the instruction at index. index may equal
// Len to append. placement decides where labels on the instruction at index
// end up.
//
// Labels already attached to ins must have been created by this stream and
// not be attached anywhere else.
func (s *Stream) InsertRange(index int, ins []Instruction, placement LabelPlacement) error {
	if placement != KeepLabels && placement != MoveLabels {
		return ErrLabelPlacement
	}
	if index < 0 || index > len(s.code) {
		return fmt.Errorf("%w: insert at %d, length %d", ErrOutOfRange, index, len(s.code))
	}
	if len(ins) == 0 {
		return nil
	}

	batch := make([]Instruction, len(ins))
	seen := map[*Label]bool{}
	for i, in := range ins {
		if err := in.Validate(); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		if err := s.checkOperand(in.Operand); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		for _, l := range in.Labels {
			if l.owner != s {
				return fmt.Errorf("instruction %d: %w", i, ErrForeignLabel)
			}
			if l.attached || seen[l] {
				return fmt.Errorf("instruction %d: %w: %s", i, ErrLabelAttached, l)
			}
			seen[l] = true
		}
		batch[i] = in.copy()
	}
	for l := range seen {
		l.attached = true
	}

	if placement == MoveLabels && index < len(s.code) {
		batch[0].Labels = append(batch[0].Labels, s.code[index].Labels...)
		batch[0].Marks = append(batch[0].Marks, s.code[index].Marks...)
		s.code[index].Labels = nil
		s.code[index].Marks = nil
	}

	s.code = append(s.code[:index], append(batch, s.code[index:]...)...)
	return nil
}

// RemoveRange deletes count instructions starting at index. Labels on the
// removed instructions move to the first surviving instruction after them;
// if there is none the stream is left untouched and ErrDanglingLabel is
// returned.
func (s *Stream) RemoveRange(index, count int) error {
	if count < 0 || index < 0 || index+count > len(s.code) {
		return fmt.Errorf("%w: remove %d at %d, length %d", ErrOutOfRange, count, index, len(s.code))
	}
	if count == 0 {
		return nil
	}

	var labels []*Label
	var marks []string
	for _, in := range s.code[index : index+count] {
		labels = append(labels, in.Labels...)
		marks = append(marks, in.Marks...)
	}
	next := index + count
	if len(labels)+len(marks) > 0 {
		if next >= len(s.code) {
			return fmt.Errorf("%w: removing the last instruction would orphan %d labels", ErrDanglingLabel, len(labels)+len(marks))
		}
		s.code[next].Labels = append(labels, s.code[next].Labels...)
		s.code[next].Marks = append(marks, s.code[next].Marks...)
	}

	s.code = append(s.code[:index], s.code[next:]...)
	return nil
}

// ReplaceOperand swaps the operand of the instruction at index.
func (s *Stream) ReplaceOperand(index int, op Operand) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	in := s.code[index]
	in.Operand = op
	if err := in.Validate(); err != nil {
		return err
	}
	if err := s.checkOperand(op); err != nil {
		return err
	}
	s.code[index].Operand = op
	return nil
}

// ReplaceAll discards every instruction, and every label attached to them,
// and replaces the body with ins. Labels that were not attached yet survive.
// The frame is kept as is: locals are never renumbered.
func (s *Stream) ReplaceAll(ins []Instruction) error {
	code, labels := s.code, s.labels
	var dropped, kept []*Label
	for _, l := range labels {
		if l.attached {
			dropped = append(dropped, l)
		} else {
			kept = append(kept, l)
		}
	}
	for _, l := range dropped {
		l.attached = false
		l.owner = nil
	}
	s.code = nil
	s.labels = kept
	if err := s.InsertRange(0, ins, KeepLabels); err != nil {
		for _, l := range dropped {
			l.attached = true
			l.owner = s
		}
		s.code, s.labels = code, labels
		return err
	}
	return nil
}

// Clone makes a deep copy. Labels are recreated so edits to the copy never
// affect the original.
func (s *Stream) Clone() *Stream {
	c := &Stream{
		arity:     s.arity,
		locals:    append([]ValueKind(nil), s.locals...),
		code:      make([]Instruction, len(s.code)),
		labels:    make([]*Label, len(s.labels)),
		nextLabel: s.nextLabel,
	}
	remap := make(map[*Label]*Label, len(s.labels))
	for i, l := range s.labels {
		nl := &Label{id: l.id, owner: c, attached: l.attached}
		c.labels[i] = nl
		remap[l] = nl
	}
	for i, in := range s.code {
		in = in.copy()
		for j, l := range in.Labels {
			in.Labels[j] = remap[l]
		}
		if in.Operand.Kind == OperandLabel {
			in.Operand.Label = remap[in.Operand.Label]
		}
		c.code[i] = in
	}
	return c
}

func (s *Stream) checkIndex(index int) error {
	if index < 0 || index >= len(s.code) {
		return fmt.Errorf("%w: %d, length %d", ErrOutOfRange, index, len(s.code))
	}
	return nil
}

func (s *Stream) checkOperand(op Operand) error {
	switch op.Kind {
	case OperandLabel:
		if op.Label == nil || op.Label.owner != s {
			return ErrForeignLabel
		}
	case OperandSlot:
		if op.Slot.index < 0 || op.Slot.index >= len(s.locals) {
			return fmt.Errorf("%w: slot %d, frame has %d", ErrOutOfRange, op.Slot.index, len(s.locals))
		}
	}
	return nil
}
