package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ZenLiuCN/fn"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/engine"
	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/wasm"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "check an artifact against the Capability Interface",
		ArgsUsage: "<artifact.wasm>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "probe", Usage: "instantiate the unit and read its version and state window"},
			&cli.BoolFlag{Name: "dump", Usage: "dump the decoded module summary"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected one artifact path")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			w := c.App.Writer
			if err := inspect(w, data, c.Bool("dump")); err != nil {
				return err
			}
			if c.Bool("probe") {
				return probe(c.Context, w, data)
			}
			return nil
		},
	}
}

// inspect prints the export table of a unit and reports every
// Capability Interface export that is missing or has the wrong type.
func inspect(w io.Writer, data []byte, dump bool) error {
	sum, err := wasm.Scan(data)
	if err != nil {
		return errors.Wrap(errors.PhaseBind, errors.KindInvalidData, err, "scan module")
	}

	fmt.Fprintf(w, "Size: %s\n", humanize.Bytes(uint64(sum.Size)))
	for _, m := range sum.Memories {
		fmt.Fprintf(w, "Memory: %s initial\n", humanize.IBytes(uint64(m.Min)*wasm.PageSize))
	}

	ids := fn.MapKeys(sum.Sections)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fmt.Fprintf(w, "Sections:\n")
	for _, id := range ids {
		fmt.Fprintf(w, "  %-8s %s\n", sectionName(id), humanize.Bytes(uint64(sum.Sections[id])))
	}

	if len(sum.Imports) > 0 {
		fmt.Fprintf(w, "Imports:\n")
		for _, imp := range sum.Imports {
			fmt.Fprintf(w, "  %s.%s\n", imp.Module, imp.Name)
		}
	}

	fmt.Fprintf(w, "Capability Interface:\n")
	var problems []string
	if e, ok := sum.Exports[contract.ExportMemory]; !ok || e.Kind != wasm.KindMemory {
		fmt.Fprintf(w, "  %-26s missing\n", contract.ExportMemory)
		problems = append(problems, contract.ExportMemory+" missing")
	} else {
		fmt.Fprintf(w, "  %-26s ok\n", contract.ExportMemory)
	}
	for _, ep := range contract.EntryPoints {
		ft, ok := sum.Func(ep.Name)
		switch {
		case !ok && ep.Required:
			fmt.Fprintf(w, "  %-26s missing\n", ep.Name)
			problems = append(problems, ep.Name+" missing")
		case !ok:
			fmt.Fprintf(w, "  %-26s absent (optional)\n", ep.Name)
		case ft.String() != ep.Signature.String():
			fmt.Fprintf(w, "  %-26s %s, want %s\n", ep.Name, ft, ep.Signature)
			problems = append(problems, ep.Name+" signature")
		default:
			fmt.Fprintf(w, "  %-26s %s\n", ep.Name, ft)
		}
	}

	var other []string
	for _, name := range sum.Names() {
		if _, known := contract.Lookup(name); !known && name != contract.ExportMemory {
			other = append(other, name)
		}
	}
	if len(other) > 0 {
		fmt.Fprintf(w, "Other exports: %s\n", strings.Join(other, ", "))
	}

	if dump {
		spew.Fdump(w, sum)
	}

	if len(problems) > 0 {
		return errors.InvalidInput(errors.PhaseBind, "not a Logic Unit: "+strings.Join(problems, ", "))
	}
	return nil
}

// probe instantiates the unit once and reads the values the loader
// validates. It never calls initialize or update.
func probe(ctx context.Context, w io.Writer, data []byte) error {
	eng, err := engine.New(ctx, engine.Config{})
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	mod, err := eng.Compile(ctx, data)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx, engine.InstanceConfig{Name: "probe"})
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	var vals [3]uint32
	for i, name := range []string{contract.ExportContractVersion, contract.ExportStatePtr, contract.ExportStateSize} {
		res, err := inst.Call(ctx, name)
		if err != nil {
			return err
		}
		vals[i] = uint32(res[0])
	}

	fmt.Fprintf(w, "Contract version: %d (host %d)\n", vals[0], contract.Version)
	fmt.Fprintf(w, "State window: [%#x, +%d)\n", vals[1], vals[2])
	if vals[0] != contract.Version {
		return errors.ContractMismatch(contract.Version, vals[0])
	}
	return nil
}

func sectionName(id byte) string {
	switch id {
	case wasm.SectionCustom:
		return "custom"
	case wasm.SectionType:
		return "type"
	case wasm.SectionImport:
		return "import"
	case wasm.SectionFunction:
		return "function"
	case wasm.SectionTable:
		return "table"
	case wasm.SectionMemory:
		return "memory"
	case wasm.SectionGlobal:
		return "global"
	case wasm.SectionExport:
		return "export"
	case wasm.SectionStart:
		return "start"
	case wasm.SectionElement:
		return "element"
	case wasm.SectionCode:
		return "code"
	case wasm.SectionData:
		return "data"
	case wasm.SectionDataCount:
		return "datacount"
	case wasm.SectionTag:
		return "tag"
	default:
		return fmt.Sprintf("id %d", id)
	}
}
