package models

// AuthenticityVerdict is computed per document check and never persisted by the engine.
type AuthenticityVerdict struct {
	Authentic             bool                   `json:"authentic"`
	AuthenticityScore     int                    `json:"authenticityScore"`
	Reason                string                 `json:"reason"`
	MatchedRegistryRecord *RegistryRecord        `json:"matchedRegistryRecord,omitempty"`
	RegistryResults       []RegistryLookupResult `json:"registryResults,omitempty"`
}
