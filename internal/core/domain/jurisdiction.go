package domain

// JurisdictionUnavailable is the sentinel name used when geocoding could not
// determine any legal jurisdiction for an address. It is a valid value, not
// an error: downstream cache lookups and source matches simply never hit it.
const JurisdictionUnavailable = "N/A"

// Jurisdiction is the reduced result of resolving a free-text address:
// up to three geography names, any of which may be empty.
type Jurisdiction struct {
	County   string `json:"county,omitempty"`
	Township string `json:"township,omitempty"`
	Place    string `json:"place,omitempty"`
}

// Name promotes a single jurisdiction name by fixed priority:
// county wins over township, township wins over place.
func (j Jurisdiction) Name() string {
	switch {
	case j.County != "":
		return j.County
	case j.Township != "":
		return j.Township
	case j.Place != "":
		return j.Place
	default:
		return JurisdictionUnavailable
	}
}

// Available reports whether geocoding produced at least one geography.
func (j Jurisdiction) Available() bool {
	return j.County != "" || j.Township != "" || j.Place != ""
}
