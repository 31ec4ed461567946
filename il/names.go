package il

import "fmt"

// Names binds the symbolic label and slot names used in instructions (as
// produced by Parse) to real labels and reserved slots of one stream.
//
// A name always means the same label or slot for the lifetime of a Names, so
// one descriptor can store a value near the entry and read it again near the
// exit.
type Names struct {
	s      *Stream
	labels map[string]*Label
	slots  map[string]LocalSlot
}

// NewNames creates an empty binding for s.
func NewNames(s *Stream) *Names {
	return &Names{
		s:      s,
		labels: map[string]*Label{},
		slots:  map[string]LocalSlot{},
	}
}

// Fork returns a binding that shares slots with n but has its own labels.
// It is used when the same code is inserted at several points.
func (n *Names) Fork() *Names {
	return &Names{
		s:      n.s,
		labels: map[string]*Label{},
		slots:  n.slots,
	}
}

// Label returns the label bound to name, creating it on first use.
func (n *Names) Label(name string) *Label {
	l, ok := n.labels[name]
	if !ok {
		l = n.s.NewLabel()
		n.labels[name] = l
	}
	return l
}

// Slot returns the slot bound to name, reserving it on first use.
func (n *Names) Slot(name string, kind ValueKind) (LocalSlot, error) {
	if slot, ok := n.slots[name]; ok {
		return slot, nil
	}
	slot, err := n.s.Reserve(kind)
	if err != nil {
		return LocalSlot{}, fmt.Errorf("slot $%s: %w", name, err)
	}
	n.slots[name] = slot
	return slot, nil
}

// Bind returns a copy of ins with every symbolic operand and mark replaced by
// the label or slot it names.
func (n *Names) Bind(ins []Instruction) ([]Instruction, error) {
	out := make([]Instruction, len(ins))
	for i, in := range ins {
		in = in.copy()
		switch in.Operand.Kind {
		case OperandLabelName:
			in.Operand = To(n.Label(in.Operand.Str))
		case OperandSlotName:
			slot, err := n.Slot(in.Operand.Str, in.Operand.SlotKind)
			if err != nil {
				return nil, err
			}
			in.Operand = Slot(slot)
		}
		for _, mark := range in.Marks {
			in.Labels = append(in.Labels, n.Label(mark))
		}
		in.Marks = nil
		out[i] = in
	}
	return out, nil
}

// Check fails if a label was referenced by name but never attached.
func (n *Names) Check() error {
	for name, l := range n.labels {
		if !l.attached {
			return fmt.Errorf("%w: @%s is never defined", ErrDanglingLabel, name)
		}
	}
	return nil
}
