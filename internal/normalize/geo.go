package normalize

import (
	"fmt"
	"strings"
)

// State is a canonical Mexican federal entity with its fixed-width INEGI code.
type State struct {
	Name string
	Code string
}

var states = []State{
	{"Aguascalientes", "01"},
	{"Baja California", "02"},
	{"Baja California Sur", "03"},
	{"Campeche", "04"},
	{"Coahuila de Zaragoza", "05"},
	{"Colima", "06"},
	{"Chiapas", "07"},
	{"Chihuahua", "08"},
	{"Ciudad de México", "09"},
	{"Durango", "10"},
	{"Guanajuato", "11"},
	{"Guerrero", "12"},
	{"Hidalgo", "13"},
	{"Jalisco", "14"},
	{"México", "15"},
	{"Michoacán de Ocampo", "16"},
	{"Morelos", "17"},
	{"Nayarit", "18"},
	{"Nuevo León", "19"},
	{"Oaxaca", "20"},
	{"Puebla", "21"},
	{"Querétaro", "22"},
	{"Quintana Roo", "23"},
	{"San Luis Potosí", "24"},
	{"Sinaloa", "25"},
	{"Sonora", "26"},
	{"Tabasco", "27"},
	{"Tamaulipas", "28"},
	{"Tlaxcala", "29"},
	{"Veracruz de Ignacio de la Llave", "30"},
	{"Yucatán", "31"},
	{"Zacatecas", "32"},
}

// aliases maps common alternate spellings onto canonical state names.
var aliases = map[string]string{
	"cdmx":                "Ciudad de México",
	"distrito federal":    "Ciudad de México",
	"d.f.":                "Ciudad de México",
	"df":                  "Ciudad de México",
	"edo. de mexico":      "México",
	"edomex":              "México",
	"estado de mexico":    "México",
	"coahuila":            "Coahuila de Zaragoza",
	"michoacan":           "Michoacán de Ocampo",
	"veracruz":            "Veracruz de Ignacio de la Llave",
	"nuevo leon":          "Nuevo León",
	"san luis potosi":     "San Luis Potosí",
	"queretaro de arteaga": "Querétaro",
	"b.c.":                "Baja California",
	"b.c.s.":              "Baja California Sur",
}

var stateLookup = buildStateLookup()

func buildStateLookup() map[string]State {
	lookup := make(map[string]State, len(states)+len(aliases))
	byName := make(map[string]State, len(states))
	for _, st := range states {
		byName[st.Name] = st
		lookup[geoKey(st.Name)] = st
	}
	for alias, name := range aliases {
		lookup[geoKey(alias)] = byName[name]
	}
	return lookup
}

func geoKey(s string) string {
	return strings.ToLower(foldDiacritics(Text(s)))
}

// StateRegion maps a free-text region name to its canonical state name and
// INEGI code. Unmapped values come back canonicalized with ok=false so the
// caller keeps the raw value and flags it.
func StateRegion(raw string) (st State, ok bool) {
	st, ok = stateLookup[geoKey(raw)]
	if !ok {
		return State{Name: Text(raw)}, false
	}
	return st, true
}

// NoteUnmappedRegion formats the advisory annotation for a region name that
// did not resolve through the alias table.
func NoteUnmappedRegion(raw string) string {
	return fmt.Sprintf("region %q not mapped to a known federal entity", Text(raw))
}
