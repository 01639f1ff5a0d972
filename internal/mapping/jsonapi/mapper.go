// Package jsonapi normalizes raw directory items shaped like JSON:API
// resources into listings.
package jsonapi

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

// Mapper flattens one raw item plus its linked objects into a Listing.
// It is pure data transformation: no I/O, no suspension.
type Mapper struct {
	logger *zap.Logger
}

// New constructs a Mapper.
func New(logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{logger: logger}
}

// attributes is the subset of item attributes the normalized schema
// keeps as typed fields. Optional strings stay pointers so "absent" is
// distinguishable from "present but empty".
type attributes struct {
	FirstName                *string `json:"firstName"`
	LastName                 *string `json:"lastName"`
	DisplayName              *string `json:"displayName"`
	Title                    *string `json:"title"`
	Bio                      *string `json:"bio"`
	ProfileImgURL            *string `json:"profileImgUrl"`
	TelehealthIndicator      bool    `json:"telehealthIndicator"`
	AcceptInsuranceIndicator bool    `json:"acceptInsuranceIndicator"`
	AcceptNewClients         *bool   `json:"acceptNewClientsIndicator"`
}

// relationshipRef is one (type, id) reference inside a relationships
// block; the referenced object lives in the page's included set.
type relationshipRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type relationshipData struct {
	Data json.RawMessage `json:"data"`
}

// Map normalizes one raw item. A malformed item returns an error and
// affects only itself.
func (m *Mapper) Map(item harvest.RawItem, related harvest.RelatedObjects) (*harvest.Listing, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("item has no natural key")
	}

	var attrs attributes
	if len(item.Attributes) > 0 {
		if err := json.Unmarshal(item.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode attributes for %s: %w", item.ID, err)
		}
	}

	acceptsNew := true
	if attrs.AcceptNewClients != nil {
		acceptsNew = *attrs.AcceptNewClients
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", item.ID, err)
	}

	return &harvest.Listing{
		ListingID:        item.ID,
		Kind:             item.Type,
		FirstName:        attrs.FirstName,
		LastName:         attrs.LastName,
		DisplayName:      attrs.DisplayName,
		Title:            attrs.Title,
		Bio:              attrs.Bio,
		ProfileImageURL:  attrs.ProfileImgURL,
		Telehealth:       attrs.TelehealthIndicator,
		AcceptsInsurance: attrs.AcceptInsuranceIndicator,
		AcceptsNew:       acceptsNew,
		Specialties:      m.resolveSpecialties(item, related),
		Payload:          payload,
	}, nil
}

// resolveSpecialties follows the item's specialty references into the
// page's linked objects. Unresolvable references are dropped, not
// fatal.
func (m *Mapper) resolveSpecialties(item harvest.RawItem, related harvest.RelatedObjects) []string {
	raw, ok := item.Relationships["specialties"]
	if !ok || related == nil {
		return nil
	}
	var rel relationshipData
	if err := json.Unmarshal(raw, &rel); err != nil {
		m.logger.Debug("malformed specialties relationship", zap.String("item_id", item.ID), zap.Error(err))
		return nil
	}

	var refs []relationshipRef
	if err := json.Unmarshal(rel.Data, &refs); err != nil {
		// To-one relationships carry a single object instead of a list.
		var single relationshipRef
		if err := json.Unmarshal(rel.Data, &single); err != nil {
			return nil
		}
		refs = []relationshipRef{single}
	}

	var names []string
	for _, ref := range refs {
		obj, ok := related[harvest.RelatedKey{Type: ref.Type, ID: ref.ID}]
		if !ok {
			continue
		}
		var a struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(obj.Attributes, &a); err != nil || a.Name == "" {
			continue
		}
		names = append(names, a.Name)
	}
	return names
}
