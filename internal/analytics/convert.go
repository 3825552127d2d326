package analytics

import (
	"strings"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"docpulse/internal/documents"
)

var countryQuery = gountries.New()

// countryName resolves an ISO alpha code to its common English name.
func countryName(code string) string {
	if code == "" || strings.EqualFold(code, documents.UnknownCountry) {
		return "Unknown"
	}

	country, err := countryQuery.FindCountryByAlpha(strings.ToUpper(code))
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}

func convertGeoStats(items []GeoStatRecord) []GeoStatRecord {
	result := make([]GeoStatRecord, len(items))
	for i, item := range items {
		code := strings.ToUpper(item.CountryCode)
		if code == "" || strings.EqualFold(code, documents.UnknownCountry) {
			code = documents.UnknownCountry
		}
		result[i] = GeoStatRecord{
			CountryCode: code,
			Country:     countryName(item.CountryCode),
			Viewers:     item.Viewers,
		}
	}
	return result
}

func convertDeviceStats(items []DeviceStatRecord) []DeviceStatRecord {
	caser := cases.Title(language.AmericanEnglish)

	result := make([]DeviceStatRecord, len(items))
	for i, item := range items {
		device := item.DeviceType
		if device == "" || device == documents.UnknownDevice {
			device = "unknown"
		}
		browser := item.Browser
		if browser == "" || browser == documents.UnknownBrowser {
			browser = "unknown"
		}
		result[i] = DeviceStatRecord{
			DeviceType: caser.String(device),
			Browser:    caser.String(browser),
			Viewers:    item.Viewers,
		}
	}
	return result
}
