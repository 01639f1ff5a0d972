package jsonapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

func rawItem(t *testing.T, id string, attrs map[string]any) harvest.RawItem {
	t.Helper()
	data, err := json.Marshal(attrs)
	require.NoError(t, err)
	return harvest.RawItem{ID: id, Type: "therapists", Attributes: data}
}

func TestMapFlattensAttributes(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	item := rawItem(t, "abc-123", map[string]any{
		"firstName":                "Ada",
		"lastName":                 "Byron",
		"displayName":              "Ada Byron, LMFT",
		"title":                    "Therapist",
		"bio":                      "Listens carefully.",
		"profileImgUrl":            "https://cdn.example.com/ada.jpg",
		"telehealthIndicator":      true,
		"acceptInsuranceIndicator": true,
		"acceptNewClientsIndicator": false,
	})

	listing, err := m.Map(item, nil)
	require.NoError(t, err)
	require.NotNil(t, listing)

	require.Equal(t, "abc-123", listing.ListingID)
	require.Equal(t, "therapists", listing.Kind)
	require.Equal(t, "Ada", *listing.FirstName)
	require.Equal(t, "Byron", *listing.LastName)
	require.Equal(t, "Ada Byron, LMFT", *listing.DisplayName)
	require.True(t, listing.Telehealth)
	require.True(t, listing.AcceptsInsurance)
	require.False(t, listing.AcceptsNew)
	require.NotEmpty(t, listing.Payload, "raw item is preserved verbatim")
}

func TestMapDefaultsAcceptNewClientsToTrue(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	listing, err := m.Map(rawItem(t, "x", map[string]any{"firstName": "Ada"}), nil)
	require.NoError(t, err)
	require.True(t, listing.AcceptsNew)
}

func TestMapAbsentOptionalFieldsStayNil(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	listing, err := m.Map(rawItem(t, "x", map[string]any{}), nil)
	require.NoError(t, err)
	require.Nil(t, listing.FirstName)
	require.Nil(t, listing.Bio)
	require.Nil(t, listing.ProfileImageURL)
}

func TestMapMissingNaturalKeyFails(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	_, err := m.Map(harvest.RawItem{Type: "therapists"}, nil)
	require.Error(t, err)
}

func TestMapMalformedAttributesFails(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	_, err := m.Map(harvest.RawItem{ID: "x", Attributes: json.RawMessage(`{"firstName": 5}`)}, nil)
	require.Error(t, err)
}

func specialtyRel(t *testing.T, refs any) map[string]json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]any{"data": refs})
	require.NoError(t, err)
	return map[string]json.RawMessage{"specialties": data}
}

func specialtyObj(id, name string) harvest.RawItem {
	return harvest.RawItem{
		ID:         id,
		Type:       "specialties",
		Attributes: json.RawMessage(`{"name":"` + name + `"}`),
	}
}

func TestMapResolvesSpecialtiesFromIncluded(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	item := rawItem(t, "x", map[string]any{})
	item.Relationships = specialtyRel(t, []map[string]string{
		{"type": "specialties", "id": "s1"},
		{"type": "specialties", "id": "s2"},
		{"type": "specialties", "id": "missing"},
	})
	related := harvest.IndexRelated([]harvest.RawItem{
		specialtyObj("s1", "Anxiety"),
		specialtyObj("s2", "Depression"),
	})

	listing, err := m.Map(item, related)
	require.NoError(t, err)
	require.Equal(t, []string{"Anxiety", "Depression"}, listing.Specialties,
		"unresolvable references are dropped, not fatal")
}

func TestMapResolvesToOneSpecialtyRelationship(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	item := rawItem(t, "x", map[string]any{})
	item.Relationships = specialtyRel(t, map[string]string{"type": "specialties", "id": "s1"})
	related := harvest.IndexRelated([]harvest.RawItem{specialtyObj("s1", "Anxiety")})

	listing, err := m.Map(item, related)
	require.NoError(t, err)
	require.Equal(t, []string{"Anxiety"}, listing.Specialties)
}

func TestMapWithoutRelatedObjectsHasNoSpecialties(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	item := rawItem(t, "x", map[string]any{})
	item.Relationships = specialtyRel(t, []map[string]string{{"type": "specialties", "id": "s1"}})

	listing, err := m.Map(item, nil)
	require.NoError(t, err)
	require.Nil(t, listing.Specialties)
}
