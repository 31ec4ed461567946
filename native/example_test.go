//go:build linux && (amd64 || arm64)

package native_test

import (
	"fmt"

	"github.com/pboyd/patchwork"
	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/native"
	"github.com/pboyd/patchwork/splice"
	"github.com/pboyd/patchwork/vm"
)

var installer *native.Installer

//go:noinline
func greet(name string) string {
	return "hello, " + name
}

func greetDispatch(name string) string {
	v, err := installer.Call("greet", name)
	if err != nil {
		panic(err)
	}
	s, _ := native.As[string](v)
	return s
}

func ExampleInstaller() {
	installer = native.NewInstaller(vm.NewHost())
	b, err := installer.Bind("greet", greet, greetDispatch)
	if err != nil {
		panic(err)
	}
	defer installer.Unbind("greet")

	r := patchwork.New(patchwork.Table{
		"excited": {{
			Name:   "exclaim",
			Target: "greet",
			Transform: splice.After(il.MustParse(`
				ldloc $result
				push "!"
				add
				stloc $result
			`)...),
		}},
	}, installer)

	h, _ := r.ApplyAll("excited")
	fmt.Println(greet("world"))
	fmt.Println(native.Original[func(string) string](b)("world"))

	h.Remove()
	fmt.Println(greet("world"))
	// Output:
	// hello, world!
	// hello, world
	// hello, world
}
