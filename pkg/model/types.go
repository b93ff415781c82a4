// Package model defines the record types served by Atlas and the decoding
// helpers that flatten origin JSON into them.
package model

import "strconv"

// Resource kinds, used as key prefixes in the key-value store.
const (
	KindAsset      = "asset"
	KindShape      = "shape"
	KindLayer      = "layer"
	KindHybrid     = "hybrid"
	KindUser       = "user"
	KindPermission = "perm"
)

// RootSentinelID is the synthetic asset sitting above all real roots.
// Ancestor chains terminate at it and it never appears in an index.
const RootSentinelID = 1

// Organizational hierarchy levels. Assets in these categories are not
// seasonal and are exempt from season indexing.
const (
	CategoryRegion         = "Region"
	CategoryHub            = "Hub"
	CategoryTerritory      = "Territory"
	CategoryRepresentative = "Representative"
	CategoryGrower         = "Grower"
	CategorySalesOffice    = "Sales Office"
	CategoryFarm           = "Farm"
)

// CapabilityRead is the permission capability gating read access.
const CapabilityRead = "read"

// OrganizationalCategories returns the fixed hierarchy levels, top down.
func OrganizationalCategories() []string {
	return []string{
		CategoryRegion,
		CategoryHub,
		CategoryTerritory,
		CategoryRepresentative,
		CategoryGrower,
		CategorySalesOffice,
		CategoryFarm,
	}
}

// IsOrganizational reports whether category is one of the fixed hierarchy
// levels. Everything else (Field and friends) is a seasonal leaf category.
func IsOrganizational(category string) bool {
	switch category {
	case CategoryRegion, CategoryHub, CategoryTerritory,
		CategoryRepresentative, CategoryGrower, CategorySalesOffice,
		CategoryFarm:
		return true
	}
	return false
}

// Asset is one node of the organizational forest. Parent of 0 means the
// asset is a root.
type Asset struct {
	ID        ID         `json:"id"`
	Label     string     `json:"label"`
	Category  Name       `json:"category"`
	Parent    ID         `json:"parent"`
	Shape     *Shape     `json:"shape,omitempty"`
	FieldInfo *FieldInfo `json:"field_info,omitempty"`
}

// Shape carries the opaque geometry of its owning asset. 1:1 optional.
type Shape struct {
	ID        ID     `json:"id"`
	Asset     ID     `json:"asset"`
	ShapeData string `json:"shapeData"`
}

// FieldInfo holds the seasonal agronomic attributes of a field asset,
// keyed by (field, season) on the origin side.
type FieldInfo struct {
	ID                 ID     `json:"id"`
	Field              ID     `json:"field"`
	Season             ID     `json:"season"`
	LLD                string `json:"LLD"`
	PreviousCrop       ID     `json:"previous_crop"`
	PreviousVariety    ID     `json:"previous_variety"`
	Tillage            string `json:"tillage"`
	CurrentCrop        ID     `json:"current_crop"`
	CurrentVariety     ID     `json:"current_variety"`
	YieldTarget        Float  `json:"yield_target"`
	YieldTargetUnits   string `json:"yield_target_units"`
	FieldAreaUnits     string `json:"field_area_units"`
	Acres              Float  `json:"acres"`
	DSMRequired        Flag   `json:"dsm_required"`
	Owned              Flag   `json:"owned"`
	SeedingDate        string `json:"seeding_date"`
	SeedingDepth       Float  `json:"seeding_depth"`
	RowSpacing         Float  `json:"row_spacing"`
	Irrigated          Flag   `json:"irrigated"`
	ContinuousCropping Flag   `json:"continuous_cropping"`
	StrawRemoved       Flag   `json:"straw_removed"`
	DateHarvested      string `json:"date_harvested"`
	DateYieldProcessed string `json:"date_yield_processed"`
}

// Layer is an imagery or data layer attached to an asset.
type Layer struct {
	ID             ID     `json:"id"`
	URL            string `json:"url"`
	Label          string `json:"label"`
	DateCreated    string `json:"date_created"`
	ImageryDate    string `json:"imagery_date"`
	ImageryEndDate string `json:"imagery_end_date"`
	SrcType        string `json:"srcType"`
	LayerType      string `json:"layerType"`
	Category       Name   `json:"category"`
	Source         string `json:"source"`
	Bounds         string `json:"bounds"`
	YieldDefault   Flag   `json:"yield_default"`
	Asset          ID     `json:"asset"`
}

// Hybrid is a crop variety record.
type Hybrid struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Crop ID     `json:"crop"`
}

// User is the authenticated caller, resolved from a bearer token.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
}

// Permission grants capabilities on a root asset to a user. Access to the
// root implies access to every descendant of that root.
type Permission struct {
	ID           ID       `json:"id"`
	Asset        ID       `json:"asset"`
	UserID       ID       `json:"userId"`
	Capabilities StringSet `json:"perm"`
}

// HasCapability reports whether the permission carries the capability.
func (p *Permission) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Key builds a record key in the "kind:id" form used throughout the store.
func Key(kind string, id ID) string {
	return kind + ":" + strconv.FormatInt(int64(id), 10)
}
