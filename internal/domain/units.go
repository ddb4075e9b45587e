package domain

import (
	"math"
	"strconv"
	"strings"
)

// PriceUnit identifies the unit a menu item's price applies to.
type PriceUnit string

const (
	// UnitEach prices the item per piece.
	UnitEach PriceUnit = "each"
	// UnitPound prices the item per pound.
	UnitPound PriceUnit = "lb"
	// UnitOunce prices the item per ounce.
	UnitOunce PriceUnit = "oz"
	// UnitKilogram prices the item per kilogram.
	UnitKilogram PriceUnit = "kg"
	// UnitGram prices the item per gram.
	UnitGram PriceUnit = "g"
	// UnitDozen prices the item per dozen.
	UnitDozen PriceUnit = "dozen"
	// UnitPack prices the item per pack.
	UnitPack PriceUnit = "pack"
	// UnitLiter prices the item per liter.
	UnitLiter PriceUnit = "l"
	// UnitMilliliter prices the item per milliliter.
	UnitMilliliter PriceUnit = "ml"
)

var unitAliases = map[string]PriceUnit{
	"each":       UnitEach,
	"ea":         UnitEach,
	"unit":       UnitEach,
	"item":       UnitEach,
	"lb":         UnitPound,
	"lbs":        UnitPound,
	"pound":      UnitPound,
	"pounds":     UnitPound,
	"oz":         UnitOunce,
	"ounce":      UnitOunce,
	"ounces":     UnitOunce,
	"kg":         UnitKilogram,
	"kilogram":   UnitKilogram,
	"kilograms":  UnitKilogram,
	"g":          UnitGram,
	"gram":       UnitGram,
	"grams":      UnitGram,
	"dozen":      UnitDozen,
	"dz":         UnitDozen,
	"doz":        UnitDozen,
	"pack":       UnitPack,
	"pk":         UnitPack,
	"l":          UnitLiter,
	"liter":      UnitLiter,
	"litre":      UnitLiter,
	"ml":         UnitMilliliter,
	"milliliter": UnitMilliliter,
	"millilitre": UnitMilliliter,
}

// NormalizePriceUnit maps aliases and casing variants onto the canonical unit
// set. Empty or unrecognised values resolve to UnitEach.
func NormalizePriceUnit(raw string) PriceUnit {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return UnitEach
	}
	if unit, ok := unitAliases[key]; ok {
		return unit
	}
	return UnitEach
}

// AllowsFractionalQuantity reports whether quantities for the unit may carry a
// fractional component. Weight and volume units do; count units do not.
func (u PriceUnit) AllowsFractionalQuantity() bool {
	switch u {
	case UnitPound, UnitOunce, UnitKilogram, UnitGram, UnitLiter, UnitMilliliter:
		return true
	default:
		return false
	}
}

// ValidQuantity reports whether qty is usable for the unit: positive, finite,
// and whole when the unit counts discrete pieces.
func (u PriceUnit) ValidQuantity(qty float64) bool {
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return false
	}
	if !u.AllowsFractionalQuantity() && qty != math.Trunc(qty) {
		return false
	}
	return true
}

// FormatQuantity renders a quantity for order payloads and receipts, e.g.
// "0.25 lb", "2", "1 dozen". Count quantities of UnitEach omit the unit name.
func FormatQuantity(qty float64, unit PriceUnit) string {
	var rendered string
	if qty == math.Trunc(qty) {
		rendered = strconv.FormatInt(int64(qty), 10)
	} else {
		rendered = strconv.FormatFloat(qty, 'f', -1, 64)
	}
	if unit == UnitEach || unit == "" {
		return rendered
	}
	return rendered + " " + string(unit)
}
