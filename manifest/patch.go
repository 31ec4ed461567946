package manifest

import (
	"fmt"
	"strings"

	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/splice"
)

func (p Patch) transform() (splice.Transform, error) {
	if p.Kind == "splice" {
		if p.Code != "" {
			return splice.Transform{}, fmt.Errorf("splice patches take edits, not code")
		}
		edits := make([]splice.Edit, len(p.Edits))
		for i, e := range p.Edits {
			var err error
			if edits[i], err = e.edit(); err != nil {
				return splice.Transform{}, fmt.Errorf("edit %d: %w", i, err)
			}
		}
		return splice.Splice(edits...), nil
	}

	if len(p.Edits) > 0 {
		return splice.Transform{}, fmt.Errorf("only splice patches take edits")
	}
	code, err := il.Parse(p.Code)
	if err != nil {
		return splice.Transform{}, err
	}

	switch p.Kind {
	case "before":
		return splice.Before(code...), nil
	case "deniable-before":
		return splice.DeniableBefore(code...), nil
	case "after":
		return splice.After(code...), nil
	case "replace":
		return splice.Replace(code...), nil
	}
	return splice.Transform{}, fmt.Errorf("unknown patch kind %q", p.Kind)
}

func (e Edit) edit() (splice.Edit, error) {
	out := splice.Edit{
		Offset: e.Offset,
		Count:  e.Count,
		Mark:   e.Mark,
	}

	var err error
	if out.Action, err = splice.ParseAction(e.Action); err != nil {
		return out, err
	}

	op, anchor, err := parseAnchor(e.Anchor)
	if err != nil {
		return out, err
	}
	out.Anchor = anchor

	switch e.Direction {
	case "forward":
		out.Direction = il.Forward
	case "backward":
		out.Direction = il.Backward
	default:
		return out, fmt.Errorf("unknown direction %q", e.Direction)
	}

	switch e.Placement {
	case "":
	case "keep":
		out.Placement = il.KeepLabels
	case "move":
		out.Placement = il.MoveLabels
	default:
		return out, fmt.Errorf("unknown label placement %q", e.Placement)
	}

	if e.Code != "" {
		if out.Code, err = il.Parse(e.Code); err != nil {
			return out, err
		}
	}

	if e.Operand != "" {
		ins, err := il.Parse(op.String() + " " + e.Operand)
		if err != nil {
			return out, fmt.Errorf("operand: %w", err)
		}
		out.Operand = ins[0].Operand
	}

	return out, nil
}

// parseAnchor turns "call announce" into a matcher for exactly that
// instruction, and a bare opcode such as "ret" or "push" into a matcher for
// any instruction with that opcode.
func parseAnchor(text string) (il.Opcode, il.Matcher, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil, fmt.Errorf("edit has no anchor")
	}

	if op, ok := il.LookupOpcode(text); ok {
		return op, il.OpIs(op), nil
	}

	ins, err := il.Parse(text)
	if err != nil {
		return 0, nil, fmt.Errorf("anchor: %w", err)
	}
	if len(ins) != 1 {
		return 0, nil, fmt.Errorf("anchor must be one instruction, got %q", text)
	}
	return ins[0].Op, il.OpWith(ins[0].Op, ins[0].Operand), nil
}
