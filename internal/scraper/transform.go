package scraper

import (
	"encoding/json"

	"wuwaguides/internal/textnorm"
	"wuwaguides/internal/upstream"
	"wuwaguides/pkg/models"
)

// attributes maps upstream element ids to their names.
var attributes = map[string]string{
	"1": "Glacio",
	"2": "Fusion",
	"3": "Electro",
	"4": "Aero",
	"5": "Spectro",
	"6": "Havoc",
}

// Attribute resolves an element id; unknown ids give nil.
func Attribute(elementID string) *string {
	name, ok := attributes[elementID]
	if !ok {
		return nil
	}
	return &name
}

// Transform builds the cached document for one character from its roster
// entry, the chosen guide and that guide's detail payload. Missing optional
// fields become null (or "N/A" for prose); it never fails. detail must not be nil.
func Transform(entry models.RosterEntry, chosen models.GuideCandidate, detail *upstream.GuideDetail, language string) models.NormalizedGuide {
	texts := localized(detail.BaseTexts, language)
	role := detail.Role

	return models.NormalizedGuide{
		CharacterInfo: models.CharacterInfo{
			ID:        entry.ID,
			Name:      role.Name(),
			Rarity:    role.Star,
			Attribute: Attribute(role.Element.GbID.String()),
			CardURL:   role.CardPictureURL,
			IllustURL: role.IllustrationPictureURL,
		},
		GuideMeta: models.GuideMeta{
			GuideName: texts.IntroductionName,
			Source:    texts.IntroductionSource,
			Likes:     chosen.LikeCount,
			GuideID:   chosen.ID,
		},
		Overview: models.Overview{
			RoleDescription: plain(texts.RoleDescription),
			Synopsis:        plain(texts.IntroductionSynopsis),
			Rotation:        plain(texts.IntroductionDetail),
		},
		Weapons:         section(detail.Weapon),
		Echoes:          section(detail.Echo),
		Teams:           section(detail.Teammate),
		SkillPriority:   section(detail.RoleSkill),
		ResonanceChains: section(detail.RoleResonance),
	}
}

// localized returns the first base text in language, or an empty one.
func localized(texts []upstream.BaseText, language string) upstream.BaseText {
	for _, t := range texts {
		if t.Language == language {
			return t
		}
	}
	return upstream.BaseText{}
}

func plain(s *string) string {
	if s == nil {
		return textnorm.Empty
	}
	return textnorm.PlainText(*s)
}

// section passes a structured block through untouched; an absent block is
// stored as an empty object.
func section(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
