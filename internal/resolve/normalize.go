package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are trailing tokens dropped from entity names. They are matched after
// punctuation is gone, so "L.L.C." and "Inc." arrive here as LLC and INC.
var legalSuffixes = map[string]bool{
	"LLC": true, "INC": true, "INCORPORATED": true,
	"CORP": true, "CORPORATION": true,
	"LTD": true, "LIMITED": true,
	"LP": true, "LLP": true, "PLLC": true,
	"PC": true, "PA": true,
	"CO": true, "COMPANY": true,
	"PLC": true, "NA": true, "DBA": true,
	"HOLDING": true, "HOLDINGS": true, "GROUP": true,
	"SA": true, "AG": true, "NV": true,
}

// NormalizeName standardizes an entity name for matching:
//  1. Unicode fold (NFKD, combining marks removed) so "Nestlé" matches "Nestle"
//  2. Upper case
//  3. Parenthesized fragments removed (GHGRP parents carry "(100%)")
//  4. "&" becomes AND, periods and apostrophes vanish, other punctuation becomes a space
//  5. A leading THE and trailing legal suffixes (LLC, Inc, Corp, Holdings...) dropped
//  6. Whitespace collapsed
func NormalizeName(name string) string {
	name = strings.TrimSpace(foldAccents(name))
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)
	name = stripParens(name)
	name = strings.NewReplacer("D/B/A", " DBA ", "&", " AND ", ".", "", "'", "", "’", "").Replace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, name)

	tokens := strings.Fields(name)
	if len(tokens) > 1 && tokens[0] == "THE" {
		tokens = tokens[1:]
	}
	// "Merck & Co" leaves a dangling AND once CO is gone
	for len(tokens) > 1 && (legalSuffixes[tokens[len(tokens)-1]] || tokens[len(tokens)-1] == "AND") {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// NormalizeTicker canonicalizes a ticker symbol. Exchange suffixes (.N, .O, .US,
// :US, -US, " US Equity") are removed and share-class separators unified, so
// BRK.B, BRK/B and brk-b all become BRK-B.
func NormalizeTicker(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return ""
	}
	t = strings.TrimSuffix(t, " EQUITY")
	for _, suffix := range []string{" US", ":US", "-US", ".US", ".N", ".O"} {
		if strings.HasSuffix(t, suffix) && len(t) > len(suffix) {
			t = strings.TrimSuffix(t, suffix)
			break
		}
	}
	t = strings.NewReplacer(".", "-", "/", "-", " ", "").Replace(t)
	return strings.Trim(t, "-")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func stripParens(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
