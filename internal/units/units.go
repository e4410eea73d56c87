package units

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Code identifies a unit of measure.
type Code string

const (
	Piece    Code = "adet"
	Kilogram Code = "kg"
	Litre    Code = "lt"
	Metre    Code = "mt"
	Box      Code = "kutu"
	Package  Code = "paket"
)

// Unit describes how a product is counted.
type Unit struct {
	Code       Code   `json:"code"`
	Label      string `json:"label"`
	Fractional bool   `json:"fractional"`
}

var registry = map[Code]Unit{
	Piece:    {Code: Piece, Label: "Adet", Fractional: false},
	Kilogram: {Code: Kilogram, Label: "Kilogram", Fractional: true},
	Litre:    {Code: Litre, Label: "Litre", Fractional: true},
	Metre:    {Code: Metre, Label: "Metre", Fractional: true},
	Box:      {Code: Box, Label: "Kutu", Fractional: false},
	Package:  {Code: Package, Label: "Paket", Fractional: false},
}

// Lookup returns the unit registered under code.
func Lookup(code Code) (Unit, bool) {
	u, ok := registry[code]
	return u, ok
}

// Normalize maps user input such as "KG" or " Adet " to a registered code.
func Normalize(raw string) (Code, bool) {
	code := Code(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := registry[code]; !ok {
		return "", false
	}
	return code, true
}

// Label returns the display label, or the raw code when it is unknown.
func Label(code Code) string {
	if u, ok := registry[code]; ok {
		return u.Label
	}
	return string(code)
}

// AllowsQuantity reports whether q is a valid amount for the unit.
// Whole-number units reject fractional amounts; unknown units reject everything.
func AllowsQuantity(code Code, q decimal.Decimal) bool {
	u, ok := registry[code]
	if !ok {
		return false
	}
	return u.Fractional || q.IsInteger()
}

// All returns the registry sorted by code.
func All() []Unit {
	out := make([]Unit, 0, len(registry))
	for _, u := range registry {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Codes lists the registered codes, sorted.
func Codes() []string {
	all := All()
	codes := make([]string, len(all))
	for i, u := range all {
		codes[i] = string(u.Code)
	}
	return codes
}
