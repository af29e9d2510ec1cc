package tab

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultBaseURL is the public Tabcorp API host.
	DefaultBaseURL = "https://api.beta.tab.com.au"

	// OAuthTokenPath is the token endpoint relative to the base URL.
	OAuthTokenPath = "/oauth/token"

	// DefaultJurisdiction applies when neither the config nor the call
	// provides one.
	DefaultJurisdiction = "NSW"

	userAgent = "tab-mcp/1.0.0"
)

// Race type mnemonics used in racing paths.
const (
	RaceTypeThoroughbred = "R"
	RaceTypeHarness      = "H"
	RaceTypeGreyhound    = "G"
)

var jurisdictions = map[string]bool{
	"NSW": true, "VIC": true, "QLD": true, "SA": true,
	"TAS": true, "ACT": true, "NT": true,
}

var raceTypes = map[string]bool{
	RaceTypeThoroughbred: true,
	RaceTypeHarness:      true,
	RaceTypeGreyhound:    true,
}

// Jurisdictions returns the supported jurisdiction codes in sorted order.
func Jurisdictions() []string {
	out := make([]string, 0, len(jurisdictions))
	for j := range jurisdictions {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// ValidateJurisdiction normalizes a jurisdiction code to upper case, falling
// back to the given default when empty.
func ValidateJurisdiction(jurisdiction, fallback string) (string, error) {
	j := strings.ToUpper(strings.TrimSpace(jurisdiction))
	if j == "" {
		j = strings.ToUpper(strings.TrimSpace(fallback))
	}
	if j == "" {
		j = DefaultJurisdiction
	}
	if !jurisdictions[j] {
		return "", fmt.Errorf("invalid jurisdiction %q, must be one of %s", j, strings.Join(Jurisdictions(), ", "))
	}
	return j, nil
}

// ValidateRaceType normalizes a race type mnemonic to upper case.
func ValidateRaceType(raceType string) (string, error) {
	rt := strings.ToUpper(strings.TrimSpace(raceType))
	if !raceTypes[rt] {
		return "", fmt.Errorf("invalid race type %q, must be R (thoroughbred), H (harness) or G (greyhound)", raceType)
	}
	return rt, nil
}

// Config holds the credentials and defaults for a Client.
type Config struct {
	// BaseURL overrides DefaultBaseURL, mainly for tests.
	BaseURL string

	// OAuth application credentials.
	ClientID     string
	ClientSecret string

	// Account credentials for the password grant. Optional; public data
	// only needs the client_credentials grant.
	Username string
	Password string

	// RefreshToken seeds the refresh grant when one is already held.
	RefreshToken string

	// Jurisdiction is the default jurisdiction for requests that do not
	// name one. Defaults to NSW.
	Jurisdiction string
}

// Validate checks the config and normalizes the jurisdiction.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	j, err := ValidateJurisdiction(c.Jurisdiction, DefaultJurisdiction)
	if err != nil {
		return err
	}
	c.Jurisdiction = j
	return nil
}
