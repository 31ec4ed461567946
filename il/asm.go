package il

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads instructions in assembly text, one per line:
//
//	    ldarg 0
//	    push 0
//	    lt
//	    jmpf @ok          ; jump to a named label
//	    push 1
//	    stloc $result     ; named slot, reserved on first use
//	ok: ldloc $result:int
//
// Comments start with ';'. "name:" defines a label on the next instruction.
// Names stay symbolic; they are bound when the code is spliced into a
// stream (see Names) or assembled on its own.
func Parse(text string) ([]Instruction, error) {
	var out []Instruction
	var marks []string

	sc := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(stripComment(sc.Text()))

		for {
			name, rest, ok := cutLabelDef(line)
			if !ok {
				break
			}
			marks = append(marks, name)
			line = rest
		}
		if line == "" {
			continue
		}

		in, err := parseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		in.Marks = marks
		marks = nil
		out = append(out, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(marks) > 0 {
		return nil, fmt.Errorf("line %d: label %q does not precede an instruction", lineNo, marks[0])
	}
	return out, nil
}

// MustParse is like Parse but panics on error. It is meant for code tables
// built at init time.
func MustParse(text string) []Instruction {
	ins, err := Parse(text)
	if err != nil {
		panic("il.MustParse: " + err.Error())
	}
	return ins
}

// Assemble builds a complete routine body from assembly text. Named labels
// and slots are bound to fresh labels and reserved slots.
func Assemble(arity, numLocals int, text string) (*Stream, error) {
	ins, err := Parse(text)
	if err != nil {
		return nil, err
	}
	s := NewStream(arity, numLocals)
	names := NewNames(s)
	bound, err := names.Bind(ins)
	if err != nil {
		return nil, err
	}
	if err := s.Append(bound...); err != nil {
		return nil, err
	}
	if err := names.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

func cutLabelDef(line string) (name, rest string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", line, false
	}
	name = line[:colon]
	if !isIdent(name) {
		return "", line, false
	}
	return name, strings.TrimSpace(line[colon+1:]), true
}

func parseInstruction(line string) (Instruction, error) {
	mnemonic, arg := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		mnemonic, arg = line[:i], strings.TrimSpace(line[i:])
	}

	op, ok := LookupOpcode(mnemonic)
	if !ok {
		return Instruction{}, fmt.Errorf("unknown instruction %q", mnemonic)
	}

	want := op.Info().Operand
	if want == OperandNone {
		if arg != "" {
			return Instruction{}, fmt.Errorf("%s takes no operand", op)
		}
		return Make(op), nil
	}
	if arg == "" {
		return Instruction{}, fmt.Errorf("%s needs an operand", op)
	}

	operand, err := parseOperand(want, arg)
	if err != nil {
		return Instruction{}, fmt.Errorf("%s: %w", op, err)
	}
	return Make(op, operand), nil
}

func parseOperand(want OperandKind, arg string) (Operand, error) {
	switch want {
	case operandConst:
		return ParseConst(arg)

	case OperandInt:
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("bad integer %q", arg)
		}
		return Int(v), nil

	case OperandSlot:
		if name, ok := strings.CutPrefix(arg, "$"); ok {
			name, kindName, hasKind := strings.Cut(name, ":")
			kind := KindAny
			if hasKind {
				if kind, ok = ParseValueKind(kindName); !ok {
					return Operand{}, fmt.Errorf("unknown value kind %q", kindName)
				}
			}
			if !isIdent(name) {
				return Operand{}, fmt.Errorf("bad slot name %q", name)
			}
			return SlotName(name, kind), nil
		}
		v, err := strconv.Atoi(arg)
		if err != nil || v < 0 {
			return Operand{}, fmt.Errorf("bad slot %q", arg)
		}
		return Slot(Local(v)), nil

	case OperandLabel:
		name, ok := strings.CutPrefix(arg, "@")
		if !ok || !isIdent(name) {
			return Operand{}, fmt.Errorf("branch target must be a label name like @done, got %q", arg)
		}
		return LabelName(name), nil

	case OperandRoutine:
		if strings.ContainsAny(arg, " \t\"") {
			return Operand{}, fmt.Errorf("bad routine name %q", arg)
		}
		return Call(RoutineID(arg)), nil

	case OperandString:
		if strings.HasPrefix(arg, `"`) {
			v, err := strconv.Unquote(arg)
			if err != nil {
				return Operand{}, fmt.Errorf("bad string %s", arg)
			}
			return Str(v), nil
		}
		return Str(arg), nil
	}
	return Operand{}, fmt.Errorf("unsupported operand kind %s", want)
}

// ParseConst reads a constant as written after push: nil, true, false, an
// integer or a quoted string.
func ParseConst(arg string) (Operand, error) {
	switch arg {
	case "nil":
		return Nil(), nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	if strings.HasPrefix(arg, `"`) {
		v, err := strconv.Unquote(arg)
		if err != nil {
			return Operand{}, fmt.Errorf("bad string %s", arg)
		}
		return Str(v), nil
	}
	v, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		return Operand{}, fmt.Errorf("bad constant %q", arg)
	}
	return Int(v), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && (unicode.IsDigit(r) || r == '.')) {
			continue
		}
		return false
	}
	return true
}

// Format returns a listing of s. Labels are numbered by position so two
// structurally identical streams format identically.
func Format(s *Stream) string {
	names := make(map[*Label]string)
	n := 0
	for _, in := range s.code {
		for _, l := range in.Labels {
			names[l] = "L" + strconv.Itoa(n)
			n++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "; args %d, locals %d\n", s.arity, len(s.locals))
	for i, in := range s.code {
		for _, l := range in.Labels {
			fmt.Fprintf(&sb, "%s:\n", names[l])
		}
		for _, m := range in.Marks {
			fmt.Fprintf(&sb, "%s:\n", m)
		}
		text := in.String()
		if in.Operand.Kind == OperandLabel {
			name, ok := names[in.Operand.Label]
			if !ok {
				name = "L?"
			}
			text = in.Op.String() + " " + name
		}
		fmt.Fprintf(&sb, "%04d\t%s\n", i, text)
	}
	return sb.String()
}
