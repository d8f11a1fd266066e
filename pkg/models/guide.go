package models

import (
	"encoding/json"
	"time"
)

// Roster status codes reported by the guide service.
const (
	RoleStatusActive   = 1
	RoleStatusUpcoming = 3
)

// ManifestTimeFormat is the layout of Manifest.LastUpdatedUTC (UTC, second precision).
const ManifestTimeFormat = "2006-01-02T15:04:05Z"

// RosterEntry is one character candidate from the upstream roster.
// It is fetched fresh on every run and never persisted.
type RosterEntry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   int    `json:"status"`
	Sequence *int   `json:"sequence,omitempty"` // nil sorts last
}

// GuideCandidate is one community guide submitted for a character.
type GuideCandidate struct {
	ID        LooseID `json:"id"`
	LikeCount int64   `json:"like_count"`
}

// CharacterInfo is the summary stored both in a guide document and in the manifest.
// Nullable fields stay nil when upstream omits them.
type CharacterInfo struct {
	ID        int64   `json:"id"`
	Name      *string `json:"name"`
	Rarity    LooseID `json:"rarity"` // as sent upstream, usually a number
	Attribute *string `json:"attribute"`
	CardURL   LooseID `json:"card_url"`
	IllustURL LooseID `json:"illust_url"`
}

type GuideMeta struct {
	GuideName *string `json:"guide_name"`
	Source    *string `json:"source"`
	Likes     int64   `json:"likes"`
	GuideID   LooseID `json:"guide_id"`
}

// Overview holds the free-text guide fields after markup stripping.
type Overview struct {
	RoleDescription string `json:"role_description"`
	Synopsis        string `json:"synopsis"`
	Rotation        string `json:"rotation"`
}

// NormalizedGuide is the canonical per-character document written to the cache
// under "guide:<CharacterInfo.ID>".
//
// The structured sections are not interpreted; they hold the upstream JSON verbatim
// (key order included) so schema drift upstream never breaks the pipeline.
type NormalizedGuide struct {
	CharacterInfo   CharacterInfo   `json:"character_info"`
	GuideMeta       GuideMeta       `json:"guide_meta"`
	Overview        Overview        `json:"overview"`
	Weapons         json.RawMessage `json:"weapons"`
	Echoes          json.RawMessage `json:"echoes"`
	Teams           json.RawMessage `json:"teams"`
	SkillPriority   json.RawMessage `json:"skill_priority"`
	ResonanceChains json.RawMessage `json:"resonance_chains"`
}

// Manifest indexes every character cached by the last completed run.
type Manifest struct {
	Characters     map[string]CharacterInfo `json:"characters"`
	LastUpdatedUTC string                   `json:"last_updated_utc"`
}

// NewManifest returns an empty manifest ready to be filled by a run.
func NewManifest() *Manifest {
	return &Manifest{Characters: make(map[string]CharacterInfo)}
}

// Stamp sets LastUpdatedUTC from t.
func (m *Manifest) Stamp(t time.Time) {
	m.LastUpdatedUTC = t.UTC().Format(ManifestTimeFormat)
}
