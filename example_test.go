package patchwork_test

import (
	"fmt"

	"github.com/pboyd/patchwork"
	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/splice"
	"github.com/pboyd/patchwork/vm"
)

func Example() {
	host := vm.NewHost()
	body, _ := il.Assemble(0, 0, "push 0\nret")
	host.Define("value", body)

	r := patchwork.New(patchwork.Table{
		"mod": {{
			Name:      "return-one",
			Target:    "value",
			Transform: splice.Replace(il.MustParse("push 1\nret")...),
		}},
	}, host)

	before, _ := host.Call("value")
	h, _ := r.ApplyAll("mod")
	during, _ := host.Call("value")
	h.Remove()
	after, _ := host.Call("value")

	fmt.Println(before, during, after)
	// Output: 0 1 0
}

func ExampleRegistry_Query() {
	host := vm.NewHost()
	body, _ := il.Assemble(2, 0, "ldarg 0\nldarg 1\nsub\nret")
	host.Define("hurt", body)

	double := splice.After(il.MustParse(`
		ldloc $result
		push 2
		mul
		stloc $result
	`)...)
	r := patchwork.New(patchwork.Table{
		"rage":  {{Name: "double", Group: "combat", Target: "hurt", Transform: double}},
		"armor": {{Name: "block", Target: "hurt", Transform: splice.Before(il.MustParse("push 0\nstarg 1")...)}},
	}, host)
	r.ApplyAll("rage")
	r.ApplyAll("armor")

	for _, p := range r.Query("hurt") {
		fmt.Printf("%d %s/%s %s %q\n", p.Seq, p.Owner, p.Name, p.Kind, p.Group)
	}
	v, _ := host.Call("hurt", 10, 3)
	fmt.Println(v)
	// Output:
	// 1 rage/double after "combat"
	// 2 armor/block before ""
	// 20
}
