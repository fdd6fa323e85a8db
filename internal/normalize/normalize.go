// Package normalize converts fiscal codes to their canonical forms and
// renders them for display.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Digits keeps only ASCII digits
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// IsDigits reports whether s is exactly n ASCII digits
func IsDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NCM strips separators and right-pads with zeros to 8 digits:
// "1701" -> "17010000", "1701.11.00" -> "17011100". Inputs that are not
// purely numeric after removing separators are returned trimmed, unchanged,
// so the format check can report them.
func NCM(code string) string {
	code = strings.TrimSpace(code)
	stripped := stripSeparators(code)
	if stripped == "" || Digits(stripped) != stripped {
		return code
	}
	if len(stripped) < 8 {
		stripped += strings.Repeat("0", 8-len(stripped))
	}
	return stripped
}

// CST left-pads a numeric code to 2 digits: "1" -> "01". Empty stays empty.
func CST(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || Digits(code) != code {
		return code
	}
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// CFOP strips separators: "5.101" -> "5101"
func CFOP(code string) string {
	code = strings.TrimSpace(code)
	stripped := stripSeparators(code)
	if stripped == "" || Digits(stripped) != stripped {
		return code
	}
	return stripped
}

// State upper-cases a UF code
func State(uf string) string {
	return strings.ToUpper(strings.TrimSpace(uf))
}

// TaxID keeps the digits of a CNPJ/CPF
func TaxID(s string) string {
	return Digits(s)
}

// FormatCNPJ renders 14 digits as "12.345.678/0001-90"; other inputs are returned as is
func FormatCNPJ(cnpj string) string {
	d := Digits(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// FormatNCM renders 8 digits as "1701.11.00"; other inputs are returned as is
func FormatNCM(ncm string) string {
	if !IsDigits(ncm, 8) {
		return ncm
	}
	return ncm[0:4] + "." + ncm[4:6] + "." + ncm[6:8]
}

// FormatAccessKey groups the 44-digit key in blocks of four
func FormatAccessKey(key string) string {
	if !IsDigits(key, 44) {
		return key
	}
	parts := make([]string, 0, 11)
	for i := 0; i < 44; i += 4 {
		parts = append(parts, key[i:i+4])
	}
	return strings.Join(parts, " ")
}

// Fold lower-cases text and removes diacritics: "AÇÚCAR" -> "acucar"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokens splits folded text into alphanumeric words
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', ' ', '/':
			return -1
		}
		return r
	}, s)
}
