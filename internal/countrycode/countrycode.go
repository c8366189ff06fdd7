// Package countrycode maps country display names to ISO 3166-1 alpha-2 codes
// and back using the CLDR region table shipped with golang.org/x/text.
package countrycode

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// aliases cover official and common names that differ from the CLDR English
// display name.
var aliases = map[string]string{
	"united states of america": "US",
	"usa": "US",
	"us": "US",
	"america": "US",
	"uk": "GB",
	"great britain": "GB",
	"britain": "GB",
	"united kingdom of great britain and northern ireland": "GB",
	"russian federation": "RU",
	"iran, islamic republic of": "IR",
	"islamic republic of iran": "IR",
	"viet nam": "VN",
	"korea, republic of": "KR",
	"republic of korea": "KR",
	"korea": "KR",
	"korea, democratic people's republic of": "KP",
	"north korea": "KP",
	"syrian arab republic": "SY",
	"lao people's democratic republic": "LA",
	"laos": "LA",
	"burma": "MM",
	"myanmar": "MM",
	"czech republic": "CZ",
	"turkey": "TR",
	"türkiye": "TR",
	"turkiye": "TR",
	"ivory coast": "CI",
	"cote d'ivoire": "CI",
	"côte d'ivoire": "CI",
	"democratic republic of the congo": "CD",
	"congo, the democratic republic of the": "CD",
	"dr congo": "CD",
	"republic of the congo": "CG",
	"congo": "CG",
	"hong kong": "HK",
	"macau": "MO",
	"macao": "MO",
	"taiwan, province of china": "TW",
	"palestine": "PS",
	"palestine, state of": "PS",
	"tanzania, united republic of": "TZ",
	"bolivia, plurinational state of": "BO",
	"venezuela, bolivarian republic of": "VE",
	"moldova, republic of": "MD",
	"micronesia, federated states of": "FM",
	"eswatini": "SZ",
	"swaziland": "SZ",
	"north macedonia": "MK",
	"macedonia": "MK",
	"cabo verde": "CV",
	"timor-leste": "TL",
	"east timor": "TL",
	"vatican": "VA",
	"holy see": "VA",
	"brunei darussalam": "BN",
	"libyan arab jamahiriya": "LY",
	"uae": "AE",
}

// preferred overrides the CLDR display name for a few codes whose CLDR form
// carries a disambiguating suffix.
var preferred = map[string]string{
	"MM": "Myanmar",
	"CD": "Democratic Republic of the Congo",
	"CG": "Republic of the Congo",
	"HK": "Hong Kong",
	"MO": "Macao",
}

// reserved lists ISO 3166-1 codes that CLDR still names but that are not
// current countries: withdrawn codes, exceptional reservations and groupings.
var reserved = map[string]bool{
	"AC": true, "AN": true, "BU": true, "CP": true, "CS": true, "CT": true,
	"DD": true, "DG": true, "DY": true, "EA": true, "EU": true, "EZ": true,
	"FQ": true, "FX": true, "HV": true, "IC": true, "JT": true, "MI": true,
	"NH": true, "NQ": true, "NT": true, "PC": true, "PU": true, "PZ": true,
	"RH": true, "SU": true, "TA": true, "TP": true, "UK": true, "UN": true,
	"VD": true, "WK": true, "YD": true, "YU": true, "ZR": true,
}

var (
	once      sync.Once
	nameToISO map[string]string
	isoToName map[string]string
)

func load() {
	nameToISO = map[string]string{}
	isoToName = map[string]string{}
	namer := display.English.Regions()
	for a := 'A'; a <= 'Z'; a++ {
		for b := 'A'; b <= 'Z'; b++ {
			code := string([]rune{a, b})
			r, err := language.ParseRegion(code)
			if err != nil || reserved[code] || !r.IsCountry() || r.IsPrivateUse() {
				continue
			}
			if r.String() != code || r.Canonicalize().String() != code {
				continue
			}
			name := namer.Name(r)
			if name == "" {
				continue
			}
			if _, taken := nameToISO[normalize(name)]; !taken {
				nameToISO[normalize(name)] = code
			}
			if p, ok := preferred[code]; ok {
				name = p
				nameToISO[normalize(name)] = code
			}
			isoToName[code] = name
		}
	}
	for alias, code := range aliases {
		if _, ok := isoToName[code]; ok {
			nameToISO[normalize(alias)] = code
		}
	}
}

// ToAlpha2 returns the two-letter code for a country name. The bool is false
// when the name is not recognized.
func ToAlpha2(name string) (string, bool) {
	once.Do(load)
	key := normalize(name)
	if key == "" {
		return "", false
	}
	code, ok := nameToISO[key]
	return code, ok
}

// FromAlpha2 returns the English display name for a two-letter code.
func FromAlpha2(code string) (string, bool) {
	once.Do(load)
	name, ok := isoToName[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "’", "'")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
