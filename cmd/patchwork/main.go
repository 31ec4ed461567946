// patchwork loads a manifest, applies patches from it and shows what the
// composed routines look like.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/pboyd/patchwork"
	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/manifest"
	"github.com/pboyd/patchwork/vm"
)

var log = commonlog.GetLogger("patchwork.cmd")

func main() {
	manifestPath := flag.String("f", "patchwork.toml", "Manifest to load")
	owners := flag.String("owner", "", "Comma-separated owners to apply (default: every owner in the manifest)")
	group := flag.String("group", "", "Only apply this group")
	call := flag.String("call", "", "Routine to call after applying; remaining arguments are passed to it")
	list := flag.Bool("list", true, "Print the composed listing of every patched routine")
	verbosity := flag.Int("v", -1, "Log verbosity (default: the manifest's [log] verbosity)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: patchwork [options] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Defines the routines in a manifest, applies its patches and prints the result.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  patchwork -f game.toml                     # Apply everything, print listings\n")
		fmt.Fprintf(os.Stderr, "  patchwork -f game.toml -owner rage -group combat\n")
		fmt.Fprintf(os.Stderr, "  patchwork -f game.toml -call hurt 10 3     # Call hurt(10, 3) with patches on\n")
	}
	flag.Parse()

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	v := m.Log.Verbosity
	if *verbosity >= 0 {
		v = *verbosity
	}
	logPath := m.Log.Path
	if logPath == "" {
		commonlog.Configure(v, nil)
	} else {
		commonlog.Configure(v, &logPath)
	}

	host := vm.NewHost()
	if err := m.Define(host); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	r := patchwork.New(m, host)
	failed := false
	for _, owner := range selectOwners(m, *owners) {
		var err error
		if *group != "" {
			_, err = r.ApplyGroup(owner, *group)
		} else {
			_, err = r.ApplyAll(owner)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed = true
		}
	}

	if *list {
		if err := printRoutines(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *call != "" {
		result, err := host.Call(il.RoutineID(*call), parseArgs(flag.Args())...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(vm.Format(result))
	}

	if failed {
		os.Exit(1)
	}
}

func selectOwners(m *manifest.Manifest, flagValue string) []string {
	if flagValue == "" {
		return m.Owners()
	}
	var owners []string
	for _, owner := range strings.Split(flagValue, ",") {
		if owner = strings.TrimSpace(owner); owner != "" {
			owners = append(owners, owner)
		}
	}
	return owners
}

func printRoutines(r *patchwork.Registry) error {
	for _, id := range r.Routines() {
		s, err := r.Composed(id)
		if err != nil {
			return err
		}
		fp, err := il.FingerprintOf(s)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", id, fp)
		for _, p := range r.Query(id) {
			fmt.Printf("  #%d %s/%s (%s)", p.Seq, p.Owner, p.Name, p.Kind)
			if p.Group != "" {
				fmt.Printf(" [%s]", p.Group)
			}
			fmt.Println()
		}
		fmt.Println(il.Format(s))
	}
	log.Debugf("listed %d routines", len(r.Routines()))
	return nil
}

// parseArgs reads each argument as a constant: nil, true, false, an integer
// or a quoted string. Anything else is passed as a plain string.
func parseArgs(raw []string) []vm.Value {
	args := make([]vm.Value, len(raw))
	for i, a := range raw {
		op, err := il.ParseConst(a)
		switch {
		case err != nil:
			args[i] = a
		case op.Kind == il.OperandBool:
			args[i] = op.Bool
		case op.Kind == il.OperandInt:
			args[i] = op.Int
		case op.Kind == il.OperandString:
			args[i] = op.Str
		default:
			args[i] = nil
		}
	}
	return args
}
