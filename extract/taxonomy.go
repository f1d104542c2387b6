package extract

import (
	"strings"
	"unicode"
)

// categoryMapping standardizes the raw category labels seen on darwin.md
// (breadcrumbs and URL segments) into the canonical taxonomy.
var categoryMapping = []struct {
	match     string
	canonical string
}{
	{"telefoane mobile cu buton", "Telefoane cu Buton"},
	{"telefoane dect", "Telefoane DECT"},
	{"telefoane", "Telefoane"},
	{"smartphone", "Smartphone-uri"},
	{"laptopuri", "Laptopuri"},
	{"tablete", "Tablete"},
	{"accesorii", "Accesorii"},
	{"audio", "Audio"},
	{"casti", "Căști"},
	{"căști", "Căști"},
	{"boxe", "Boxe"},
	{"gaming", "Gaming"},
	{"smart home", "Smart Home"},
	{"smart-home", "Smart Home"},
	{"monitoare", "Monitoare"},
	{"sisteme pc", "Sisteme PC"},
	{"sisteme-pc", "Sisteme PC"},
	{"componente pc", "Componente PC"},
	{"componente-pc", "Componente PC"},
	{"periferice pc", "Periferice PC"},
	{"periferice-pc", "Periferice PC"},
	{"imprimante", "Imprimante"},
	{"camere foto", "Camere Foto"},
	{"camere-foto", "Camere Foto"},
	{"camere action", "Camere Action"},
	{"camere supraveghere", "Camere Supraveghere"},
	{"tehnica bucatarie", "Electronice Bucătărie"},
	{"tehnica-bucatarie", "Electronice Bucătărie"},
	{"aspiratoare", "Aspiratoare"},
	{"aparate fitness", "Aparate Fitness"},
	{"aparate-fitness", "Aparate Fitness"},
	{"transport personal", "Transport Personal"},
	{"transport-personal", "Transport Personal"},
	{"drone", "Drone"},
	{"ochelari vr", "Ochelari VR"},
	{"ochelari-vr", "Ochelari VR"},
	{"ceasuri inteligente", "Ceasuri Inteligente"},
	{"ceasuri-inteligente", "Ceasuri Inteligente"},
	{"bratari inteligente", "Brățări Inteligente"},
	{"bratari-inteligente", "Brățări Inteligente"},
	{"power bank", "Accesorii"},
	{"power-bank", "Accesorii"},
	{"huse", "Accesorii"},
	{"cabluri", "Accesorii"},
	{"incarcatoare", "Accesorii"},
	{"electronice", "General"},
}

var knownCategories = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range categoryMapping {
		set[m.canonical] = struct{}{}
	}
	set["General"] = struct{}{}
	return set
}()

// CanonicalCategory maps a raw category label into the canonical taxonomy.
// Unmatched labels keep their title-cased form so new site sections are not
// silently discarded.
func CanonicalCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	for _, m := range categoryMapping {
		if strings.Contains(lower, m.match) {
			return m.canonical
		}
	}
	return titleCase(lower)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// KnownCategory reports whether a category belongs to the canonical taxonomy.
// The quality scorer's accuracy check uses this.
func KnownCategory(category string) bool {
	_, ok := knownCategories[category]
	return ok
}
