package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const currencySymbol = "$"

// Report is a rendering-ready usage result. It is one of Token, Money, Map
// or Raw.
type Report interface {
	isReport()
}

// Token is a total token count.
type Token uint64

// Money is a total cost in dollars.
type Money float64

// Map holds one report per display key, typically per model.
type Map map[string]Report

// Raw is pre-serialized text passed through untouched.
type Raw string

func (Token) isReport() {}
func (Money) isReport() {}
func (Map) isReport()   {}
func (Raw) isReport()   {}

// Options controls how numbers are formatted.
type Options struct {
	// NoFormat prints money unrounded and without a symbol.
	NoFormat bool
	// NoSymbol drops the currency symbol from formatted money.
	NoSymbol bool
}

// Render turns a report into its final text form.
func Render(r Report, opts Options) (string, error) {
	switch v := r.(type) {
	case Token:
		return renderToken(v), nil
	case Money:
		return renderMoney(v, opts.NoFormat, !opts.NoSymbol), nil
	case Map:
		return renderMap(v, opts)
	case Raw:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("render: nil report")
	default:
		return "", fmt.Errorf("render: unsupported report type %T", r)
	}
}

func renderToken(v Token) string {
	return strconv.FormatUint(uint64(v), 10)
}

func renderMoney(v Money, noFormat, withSymbol bool) string {
	if noFormat {
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	}
	s := strconv.FormatFloat(float64(v), 'f', 2, 64)
	if withSymbol {
		return currencySymbol + s
	}
	return s
}

// renderMap writes one header-less CSV row per entry, sorted by key so the
// same input always produces the same bytes. Money rows carry the human
// readable amount in the label and a symbol-free number in the value
// column, which keeps the column sortable by external tools.
func renderMap(m Map, opts Options) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, k := range keys {
		label, value, err := mapRow(k, m[k], opts)
		if err != nil {
			return "", fmt.Errorf("render %q: %w", k, err)
		}
		if err := w.Write([]string{label, value}); err != nil {
			return "", fmt.Errorf("write csv row %q: %w", k, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func mapRow(key string, r Report, opts Options) (string, string, error) {
	switch v := r.(type) {
	case Money:
		label := fmt.Sprintf("%s (%s)", key, renderMoney(v, false, true))
		return label, renderMoney(v, opts.NoFormat, false), nil
	case Map:
		return "", "", fmt.Errorf("nested maps are not supported")
	default:
		value, err := Render(r, opts)
		return key, value, err
	}
}
