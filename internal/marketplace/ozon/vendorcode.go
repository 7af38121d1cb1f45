package ozon

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// VendorCodeStrategy строит вариант артикула для поиска товара.
type VendorCodeStrategy struct {
	Name  string
	Apply func(string) string
}

// DefaultVendorCodeStrategies — порядок перебора: как есть, в верхнем регистре, транслитом.
var DefaultVendorCodeStrategies = []VendorCodeStrategy{
	{Name: "as_is", Apply: func(s string) string { return s }},
	{Name: "upper_case", Apply: UpperCase},
	{Name: "transliterated", Apply: Transliterate},
}

// Candidates возвращает уникальные непустые варианты артикула в порядке стратегий.
func Candidates(vendorCode string, strategies []VendorCodeStrategy) []string {
	if strategies == nil {
		strategies = DefaultVendorCodeStrategies
	}
	out := make([]string, 0, len(strategies))
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		v := strings.TrimSpace(s.Apply(vendorCode))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UpperCase переводит артикул в верхний регистр по правилам русского языка.
func UpperCase(s string) string {
	// Caser хранит состояние, поэтому создаётся на каждый вызов.
	return cases.Upper(language.Russian).String(s)
}

var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// Transliterate заменяет кириллицу латиницей; заглавные буквы дают заглавный результат.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		lower := unicode.ToLower(r)
		latin, ok := cyrillicToLatin[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if r != lower {
			latin = strings.ToUpper(latin)
		}
		b.WriteString(latin)
	}
	return b.String()
}
