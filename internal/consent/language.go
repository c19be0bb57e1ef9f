package consent

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	id "tessera/pkg/domain"
)

// Language pins one version of a scope's disclosure text. The hash is a
// content hash of the canonical text, so a later wording change is detectable
// by comparing a user's stored hash against the live one.
type Language struct {
	Version int
	Hash    string
	Text    string
}

// LanguageRegistry holds the live disclosure text per scope. Updating a text
// bumps the version; existing consent records keep the hash they were granted
// under.
type LanguageRegistry struct {
	mu        sync.RWMutex
	languages map[id.ConsentScope]Language
}

// defaultDisclosures is the canonical consent language shipped with the app.
var defaultDisclosures = map[id.ConsentScope]string{
	id.ScopeDataCollection:        "We collect the capacity signals you log in the app to operate core features.",
	id.ScopeResearchParticipation: "Your de-identified data may be included in approved research studies.",
	id.ScopeCohortInclusion:       "You may be included in de-identified research cohorts selected by coarse criteria.",
	id.ScopePartnerSharing:        "De-identified, aggregated data may be shared with vetted research partners.",
	id.ScopeSensorCapture:         "Device sensor proxies (screen time, motion) may be recorded to enrich your signals.",
	id.ScopeInterventionTracking:  "Interventions you start or stop may be recorded to study their effect.",
}

// NewLanguageRegistry builds a registry seeded with the canonical disclosure
// texts at version 1.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{languages: make(map[id.ConsentScope]Language)}
	for scope, text := range defaultDisclosures {
		r.languages[scope] = Language{Version: 1, Hash: HashDisclosure(text), Text: text}
	}
	return r
}

// Current returns the live language for a scope.
func (r *LanguageRegistry) Current(scope id.ConsentScope) Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.languages[scope]
}

// Update replaces a scope's disclosure text and bumps its version. A no-op
// when the text is unchanged.
func (r *LanguageRegistry) Update(scope id.ConsentScope, text string) Language {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.languages[scope]
	hash := HashDisclosure(text)
	if hash == current.Hash {
		return current
	}
	next := Language{Version: current.Version + 1, Hash: hash, Text: text}
	r.languages[scope] = next
	return next
}

// HashDisclosure returns the content hash that versions a disclosure text.
func HashDisclosure(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
