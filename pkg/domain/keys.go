package domain

// Local store keys. Values are strings; lists are JSON arrays.
const (
	KeyFarmers         = "farmers"          // farmer Local Mirror
	KeyOfftakes        = "offtakes"         // offtake Local Mirror
	KeyPendingFarmers  = "localSyncFarmers" // farmer Pending Queue
	KeyPendingOfftakes = "localSync"        // offtake Pending Queue

	KeySelectedCounty    = "selectedCounty"
	KeySelectedSubcounty = "selectedSubcounty"

	KeyLocalPIN       = "localPin"
	KeyLegacyPIN      = "userPIN"
	KeyLastActiveAt   = "lastActiveAt" // unix milliseconds
	KeyLocked         = "locked"
	KeyIsLoggedIn     = "isLoggedIn"
	KeyLocalAuth      = "localAuth"
	KeyStoredUsername = "storedUsername"

	offtakeCounterPrefix = "offtakeCodeCounter_"
)

// OfftakeCounterKey returns the per-county counter key for a code prefix.
func OfftakeCounterKey(prefix string) string {
	return offtakeCounterPrefix + prefix
}
