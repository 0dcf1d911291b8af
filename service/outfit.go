package service

import "strings"

// RecommendOutfit turns a daily forecast into clothing suggestions.
// Plain threshold rules, no LLM involved.
func RecommendOutfit(w *DailyWeather) string {
	var parts []string

	switch {
	case w.HighF >= 85:
		parts = append(parts, "Light, breathable clothes (shorts + t-shirt)")
	case w.HighF >= 70:
		parts = append(parts, "Comfortable clothes (jeans or shorts + light shirt)")
	case w.HighF >= 55:
		parts = append(parts, "Long pants + long-sleeve shirt or light sweater")
	case w.HighF >= 40:
		parts = append(parts, "Warm layers: sweater or fleece + jacket")
	default:
		parts = append(parts, "Bundle up! Heavy coat, warm layers, hat, and gloves")
	}

	switch {
	case w.PrecipChance >= 60:
		parts = append(parts, "Bring an umbrella and rain jacket - rain is likely!")
	case w.PrecipChance >= 30:
		parts = append(parts, "Consider packing an umbrella just in case")
	}

	switch {
	case w.PrecipChance >= 50:
		parts = append(parts, "Waterproof shoes or boots recommended")
	case w.HighF >= 75:
		parts = append(parts, "Sneakers or sandals work great")
	default:
		parts = append(parts, "Closed-toe shoes are a good call")
	}

	for i, p := range parts {
		parts[i] = "• " + p
	}
	return strings.Join(parts, "\n")
}
