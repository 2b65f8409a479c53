// errcodes generates the resolution error codes reported to scripts.
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/dave/jennifer/jen"
)

type code struct {
	name    string
	message string
}

var codes = []code{
	{"PlayerNotFound", "Player not found"},
	{"CreatureNotFound", "Creature not found"},
	{"ItemNotFound", "Item not found"},
	{"ThingNotFound", "Thing not found"},
	{"TileNotFound", "Tile not found"},
	{"HouseNotFound", "House not found"},
	{"CombatNotFound", "Combat not found"},
	{"ConditionNotFound", "Condition not found"},
	{"AreaNotFound", "Area not found"},
	{"ContainerNotFound", "Container not found"},
	{"VariantNotFound", "Variant not found"},
	{"VariantUnknown", "Unknown variant type"},
	{"SpellNotFound", "Spell not found"},
	{"AugmentNotFound", "Augment not found"},
	{"ModifierNotFound", "Damage modifier not found"},
}

func generate() *jen.File {
	f := jen.NewFile("marshal")
	f.HeaderComment("Code generated by bin/errcodes. DO NOT EDIT.")
	f.Type().Id("ErrorCode").Int()

	consts := []jen.Code{}
	for i, c := range codes {
		if i == 0 {
			consts = append(consts, jen.Id(c.name).Id("ErrorCode").Op("=").Iota().Op("+").Lit(1))
		} else {
			consts = append(consts, jen.Id(c.name))
		}
	}
	f.Const().Defs(consts...)

	sorted := append([]code{}, codes...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].name < sorted[j].name
	})
	f.Var().Id("errorCodeMessages").Op("=").Map(jen.Id("ErrorCode")).String().Values(jen.DictFunc(func(d jen.Dict) {
		for _, c := range sorted {
			d[jen.Id(c.name)] = jen.Lit(c.message)
		}
	}))

	f.Func().Params(jen.Id("e").Id("ErrorCode")).Id("String").Params().String().Block(
		jen.If(jen.List(jen.Id("msg"), jen.Id("found")).Op(":=").Id("errorCodeMessages").Index(jen.Id("e")), jen.Id("found")).Block(
			jen.Return(jen.Id("msg")),
		),
		jen.Return(jen.Lit("Unknown error")),
	)
	f.Func().Params(jen.Id("e").Id("ErrorCode")).Id("Error").Params().String().Block(
		jen.Return(jen.Id("e").Dot("String").Call()),
	)
	return f
}

func main() {
	out := flag.String("out", "marshal/errcodes_gen.go", "Path to write the generated code to.")
	flag.Parse()
	if err := generate().Save(*out); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wrote %v error codes to %q\n", len(codes), *out)
}
