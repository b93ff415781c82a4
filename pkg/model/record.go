package model

import "encoding/json"

// Records are flattened to string-field hashes under "kind:id" keys.
// Empty strings stand in for absent values; there is no tombstoning.

// Record flattens the asset for hash storage. The owned shape is stored
// as its id only; the shape record itself lives under its own key.
func (a *Asset) Record() map[string]string {
	fields := map[string]string{
		"id":       a.ID.String(),
		"label":    a.Label,
		"parent":   "",
		"category": string(a.Category),
		"shape":    "",
		"field_info": "",
	}
	if a.Parent != 0 {
		fields["parent"] = a.Parent.String()
	}
	if a.Shape != nil {
		fields["shape"] = a.Shape.ID.String()
	}
	if a.FieldInfo != nil {
		raw, err := json.Marshal(a.FieldInfo)
		if err == nil {
			fields["field_info"] = string(raw)
		}
	}
	return fields
}

// AssetFromRecord rebuilds an asset from its hash fields. The returned
// shape id is non-zero when the asset owns a shape; the caller decides
// whether to load it.
func AssetFromRecord(fields map[string]string) (*Asset, ID) {
	a := &Asset{
		ID:       ParseID(fields["id"]),
		Label:    fields["label"],
		Parent:   ParseID(fields["parent"]),
		Category: Name(fields["category"]),
	}
	if raw := fields["field_info"]; raw != "" {
		var fi FieldInfo
		if err := json.Unmarshal([]byte(raw), &fi); err == nil {
			a.FieldInfo = &fi
		}
	}
	return a, ParseID(fields["shape"])
}

func (s *Shape) Record() map[string]string {
	return map[string]string{
		"id":        s.ID.String(),
		"asset":     s.Asset.String(),
		"shapeData": s.ShapeData,
	}
}

func ShapeFromRecord(fields map[string]string) *Shape {
	return &Shape{
		ID:        ParseID(fields["id"]),
		Asset:     ParseID(fields["asset"]),
		ShapeData: fields["shapeData"],
	}
}

func (l *Layer) Record() map[string]string {
	yieldDefault := "0"
	if l.YieldDefault {
		yieldDefault = "1"
	}
	return map[string]string{
		"id":               l.ID.String(),
		"url":              l.URL,
		"label":            l.Label,
		"date_created":     l.DateCreated,
		"imagery_date":     l.ImageryDate,
		"imagery_end_date": l.ImageryEndDate,
		"srcType":          l.SrcType,
		"layerType":        l.LayerType,
		"category":         string(l.Category),
		"source":           l.Source,
		"bounds":           l.Bounds,
		"yield_default":    yieldDefault,
		"asset":            l.Asset.String(),
	}
}

func LayerFromRecord(fields map[string]string) *Layer {
	return &Layer{
		ID:             ParseID(fields["id"]),
		URL:            fields["url"],
		Label:          fields["label"],
		DateCreated:    fields["date_created"],
		ImageryDate:    fields["imagery_date"],
		ImageryEndDate: fields["imagery_end_date"],
		SrcType:        fields["srcType"],
		LayerType:      fields["layerType"],
		Category:       Name(fields["category"]),
		Source:         fields["source"],
		Bounds:         fields["bounds"],
		YieldDefault:   fields["yield_default"] == "1",
		Asset:          ParseID(fields["asset"]),
	}
}

func (h *Hybrid) Record() map[string]string {
	return map[string]string{
		"id":   h.ID.String(),
		"name": h.Name,
		"crop": h.Crop.String(),
	}
}

func HybridFromRecord(fields map[string]string) *Hybrid {
	return &Hybrid{
		ID:   ParseID(fields["id"]),
		Name: fields["name"],
		Crop: ParseID(fields["crop"]),
	}
}

func (u *User) Record() map[string]string {
	return map[string]string{
		"id":       u.ID.String(),
		"username": u.Username,
	}
}

func UserFromRecord(fields map[string]string) *User {
	return &User{
		ID:       ParseID(fields["id"]),
		Username: fields["username"],
	}
}

func (p *Permission) Record() map[string]string {
	caps := ""
	if raw, err := json.Marshal(p.Capabilities); err == nil {
		caps = string(raw)
	}
	return map[string]string{
		"id":    p.ID.String(),
		"asset": p.Asset.String(),
		"perm":  caps,
	}
}

func PermissionFromRecord(fields map[string]string) *Permission {
	p := &Permission{
		ID:    ParseID(fields["id"]),
		Asset: ParseID(fields["asset"]),
	}
	if raw := fields["perm"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &p.Capabilities)
	}
	return p
}
