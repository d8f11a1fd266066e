package upstream

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"wuwaguides/pkg/models"
)

// Endpoint paths on the guide service.
const (
	rosterPath      = "/role/avatar/list"
	guideListPath   = "/introduction/list"
	guideDetailPath = "/introduction/info"
)

type localizedName struct {
	Name models.LooseID `json:"name"`
}

// localizedNames decodes a texts array. Anything that is not an array of
// objects decodes as no names rather than failing the whole payload.
type localizedNames []localizedName

func (n *localizedNames) UnmarshalJSON(b []byte) error {
	var names []localizedName
	if err := json.Unmarshal(b, &names); err != nil {
		*n = nil
		return nil
	}
	*n = names
	return nil
}

// first is the first localized name, nil when there is none.
func (n localizedNames) first() *string {
	if len(n) == 0 || !n[0].Name.Valid() {
		return nil
	}
	s := n[0].Name.String()
	return &s
}

type rosterItem struct {
	RoleGbID   int64          `json:"roleGbId"`
	Texts      localizedNames `json:"texts"`
	RoleStatus int            `json:"roleStatus"`
	Sequence   *int           `json:"sequence"`
}

type guideSummary struct {
	ID        models.LooseID `json:"id"`
	LikeCount int64          `json:"likeCount"`
}

// GuideDetail is the part of /introduction/info the transformer reads.
// Sections are kept raw; we never interpret them.
type GuideDetail struct {
	Role          Role            `json:"role"`
	BaseTexts     []BaseText      `json:"baseTexts"`
	Weapon        json.RawMessage `json:"weapon"`
	Echo          json.RawMessage `json:"echo"`
	Teammate      json.RawMessage `json:"teammate"`
	RoleSkill     json.RawMessage `json:"roleSkill"`
	RoleResonance json.RawMessage `json:"roleResonance"`
}

// Role holds the display fields of a guide's character. They are copied into
// the cached document as sent, so none of them is typed strictly enough to
// fail decoding when the service changes a field's JSON type.
type Role struct {
	Texts                  localizedNames `json:"texts"`
	Star                   models.LooseID `json:"star"`
	Element                Element        `json:"element"`
	CardPictureURL         models.LooseID `json:"cardPictureUrl"`
	IllustrationPictureURL models.LooseID `json:"illustrationPictureUrl"`
}

// Name is the first localized name, nil when upstream sent none.
func (r Role) Name() *string {
	return r.Texts.first()
}

type Element struct {
	GbID models.LooseID `json:"gbId"`
}

// UnmarshalJSON accepts anything; a non-object element has no id.
func (e *Element) UnmarshalJSON(b []byte) error {
	var aux struct {
		GbID models.LooseID `json:"gbId"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		*e = Element{}
		return nil
	}
	e.GbID = aux.GbID
	return nil
}

// BaseText is one per-language block of guide prose.
type BaseText struct {
	Language             string  `json:"language"`
	IntroductionName     *string `json:"introductionName"`
	IntroductionSource   *string `json:"introductionSource"`
	RoleDescription      *string `json:"roleDescription"`
	IntroductionSynopsis *string `json:"introductionSynopsis"`
	IntroductionDetail   *string `json:"introductionDetail"`
}

// Roster returns every character the service knows about, in upstream order.
func (c *Client) Roster(ctx context.Context) ([]models.RosterEntry, error) {
	var items []rosterItem
	if err := c.Get(ctx, rosterPath, nil, &items); err != nil {
		return nil, err
	}

	out := make([]models.RosterEntry, 0, len(items))
	for _, it := range items {
		name := "Unknown"
		if n := it.Texts.first(); n != nil {
			name = *n
		}
		out = append(out, models.RosterEntry{
			ID:       it.RoleGbID,
			Name:     name,
			Status:   it.RoleStatus,
			Sequence: it.Sequence,
		})
	}
	return out, nil
}

// Guides lists the guides submitted for a character, in upstream order.
func (c *Client) Guides(ctx context.Context, characterID int64) ([]models.GuideCandidate, error) {
	q := url.Values{}
	q.Set("roleGbId", strconv.FormatInt(characterID, 10))

	var items []guideSummary
	if err := c.Get(ctx, guideListPath, q, &items); err != nil {
		return nil, err
	}

	out := make([]models.GuideCandidate, 0, len(items))
	for _, it := range items {
		out = append(out, models.GuideCandidate{ID: it.ID, LikeCount: it.LikeCount})
	}
	return out, nil
}

// GuideDetail fetches one full guide.
func (c *Client) GuideDetail(ctx context.Context, characterID int64, guideID models.LooseID) (*GuideDetail, error) {
	q := url.Values{}
	q.Set("roleGbId", strconv.FormatInt(characterID, 10))
	q.Set("id", guideID.String())

	var d GuideDetail
	if err := c.Get(ctx, guideDetailPath, q, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
