package license

// Encryption profile URIs accepted by the client.
const (
	ProfileBasic = "http://readium.org/lcp/basic-profile"
	Profile10    = "http://readium.org/lcp/profile-1.0"
)

// productionProfiles are only accepted when the underlying crypto provider
// is a production build.
var productionProfiles = []string{
	Profile10,
	"http://readium.org/lcp/profile-2.0",
	"http://readium.org/lcp/profile-2.1",
	"http://readium.org/lcp/profile-2.2",
	"http://readium.org/lcp/profile-2.3",
	"http://readium.org/lcp/profile-2.4",
	"http://readium.org/lcp/profile-2.5",
	"http://readium.org/lcp/profile-2.6",
}

// SupportedProfiles lists the profiles accepted for the given build mode.
func SupportedProfiles(production bool) []string {
	profiles := []string{ProfileBasic}
	if production {
		profiles = append(profiles, productionProfiles...)
	}
	return profiles
}

// ProfileAllowed reports whether the profile may be validated in the given
// build mode. Non-production builds only accept the basic profile.
func ProfileAllowed(profile string, production bool) bool {
	for _, candidate := range SupportedProfiles(production) {
		if candidate == profile {
			return true
		}
	}
	return false
}
