package cohort

import "strings"

// AgeBand is a coarse age range. Exact ages are never stored.
type AgeBand string

const (
	Age18To24  AgeBand = "18-24"
	Age25To34  AgeBand = "25-34"
	Age35To44  AgeBand = "35-44"
	Age45To54  AgeBand = "45-54"
	Age55To64  AgeBand = "55-64"
	Age65Plus  AgeBand = "65+"
	AgeUnknown AgeBand = "unknown"
)

// Region is a coarse geography bucket derived from a country code.
type Region string

const (
	RegionNorthAmerica Region = "north_america"
	RegionEurope       Region = "europe"
	RegionAsiaPacific  Region = "asia_pacific"
	RegionLatinAmerica Region = "latin_america"
	RegionOther        Region = "other"
)

// Context is the participant's self-reported usage context bucket.
type Context string

const (
	ContextWork       Context = "work"
	ContextEducation  Context = "education"
	ContextCaregiving Context = "caregiving"
	ContextPersonal   Context = "personal"
	ContextMixed      Context = "mixed"
)

// BucketAge maps an exact age to its band. Ages below 18 read as unknown;
// the service rejects them before bucketing.
func BucketAge(age int) AgeBand {
	switch {
	case age < 18:
		return AgeUnknown
	case age <= 24:
		return Age18To24
	case age <= 34:
		return Age25To34
	case age <= 44:
		return Age35To44
	case age <= 54:
		return Age45To54
	case age <= 64:
		return Age55To64
	default:
		return Age65Plus
	}
}

var countryRegions = map[string]Region{
	"US": RegionNorthAmerica, "CA": RegionNorthAmerica, "MX": RegionNorthAmerica,

	"GB": RegionEurope, "IE": RegionEurope, "FR": RegionEurope, "DE": RegionEurope,
	"ES": RegionEurope, "IT": RegionEurope, "PT": RegionEurope, "NL": RegionEurope,
	"BE": RegionEurope, "AT": RegionEurope, "CH": RegionEurope, "SE": RegionEurope,
	"NO": RegionEurope, "DK": RegionEurope, "FI": RegionEurope, "PL": RegionEurope,

	"JP": RegionAsiaPacific, "KR": RegionAsiaPacific, "CN": RegionAsiaPacific,
	"IN": RegionAsiaPacific, "AU": RegionAsiaPacific, "NZ": RegionAsiaPacific,
	"SG": RegionAsiaPacific, "HK": RegionAsiaPacific, "TW": RegionAsiaPacific,
	"TH": RegionAsiaPacific, "MY": RegionAsiaPacific, "PH": RegionAsiaPacific,
	"ID": RegionAsiaPacific, "VN": RegionAsiaPacific,

	"BR": RegionLatinAmerica, "AR": RegionLatinAmerica, "CL": RegionLatinAmerica,
	"CO": RegionLatinAmerica, "PE": RegionLatinAmerica, "EC": RegionLatinAmerica,
	"UY": RegionLatinAmerica, "VE": RegionLatinAmerica,
}

// BucketCountry maps an ISO 3166-1 alpha-2 country code to its region bucket.
// Unlisted or malformed codes read as other.
func BucketCountry(code string) Region {
	if region, ok := countryRegions[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return region
	}
	return RegionOther
}

var knownContexts = map[string]Context{
	"work":       ContextWork,
	"education":  ContextEducation,
	"caregiving": ContextCaregiving,
	"personal":   ContextPersonal,
}

// BucketContext reduces self-reported labels to one bucket. Exactly one
// recognized label maps directly; none, several, or anything unrecognized
// reads as mixed.
func BucketContext(labels []string) Context {
	if len(labels) != 1 {
		return ContextMixed
	}
	if context, ok := knownContexts[strings.ToLower(strings.TrimSpace(labels[0]))]; ok {
		return context
	}
	return ContextMixed
}
