// Package regions maps the air-traffic region labels used in the source
// spreadsheets to the city that hosts the regional centre.
package regions

import "sort"

// regionToCity is matched exactly; no trimming or case folding.
var regionToCity = map[string]string{
	"Санкт-Петербургский": "Санкт-Петербург",
	"Ростовский":          "Ростов-на-Дону",
	"Новосибирский":       "Новосибирск",
	"Екатеринбургский":    "Екатеринбург",
	"Московский":          "Москва",
	"Хабаровский":         "Хабаровск",
	"Красноярский":        "Красноярск",
	"Иркутский":           "Иркутск",
	"Якутский":            "Якутск",
	"Тюменский":           "Тюмень",
	"Самарский":           "Самара",
	"Симферопольский":     "Симферополь",
	"Магаданский":         "Магадан",
	"Калининградский":     "Калининград",
	"Центр ЕС ОрВД":       "Москва",
}

// City returns the city for a region label, or the label itself when the
// region is unknown.
func City(label string) string {
	if city, ok := regionToCity[label]; ok {
		return city
	}
	return label
}

// Known reports whether label has a mapping.
func Known(label string) bool {
	_, ok := regionToCity[label]
	return ok
}

// Labels returns the known region labels, sorted.
func Labels() []string {
	out := make([]string, 0, len(regionToCity))
	for k := range regionToCity {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
