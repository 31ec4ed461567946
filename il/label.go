package il

import "strconv"

// Label is a symbolic jump target. A label belongs to the stream that created
// it and is attached to at most one of its instructions; it only becomes an
// index when the stream is resolved.
type Label struct {
	id       int
	owner    *Stream
	attached bool
}

// ID returns the label's number, unique within its stream.
func (l *Label) ID() int {
	return l.id
}

// Attached reports whether the label currently marks an instruction.
func (l *Label) Attached() bool {
	return l.attached
}

func (l *Label) String() string {
	if l == nil {
		return "L?"
	}
	return "L" + strconv.Itoa(l.id)
}

// NewLabel creates an unattached label. It must be attached before the
// stream is resolved.
func (s *Stream) NewLabel() *Label {
	l := &Label{id: s.nextLabel, owner: s}
	s.nextLabel++
	s.labels = append(s.labels, l)
	return l
}

// Attach marks the instruction at index with l.
func (s *Stream) Attach(l *Label, index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if l.owner != s {
		return ErrForeignLabel
	}
	if l.attached {
		return ErrLabelAttached
	}
	l.attached = true
	s.code[index].Labels = append(s.code[index].Labels, l)
	return nil
}

// AttachLabelsFrom moves every label on the instruction at src to the
// instruction at dst.
func (s *Stream) AttachLabelsFrom(src, dst int) error {
	if err := s.checkIndex(src); err != nil {
		return err
	}
	if err := s.checkIndex(dst); err != nil {
		return err
	}
	if src == dst {
		return nil
	}
	s.code[dst].Labels = append(s.code[dst].Labels, s.code[src].Labels...)
	s.code[src].Labels = nil
	return nil
}

// Labels returns every label created for the stream, attached or not.
func (s *Stream) Labels() []*Label {
	return append([]*Label(nil), s.labels...)
}
