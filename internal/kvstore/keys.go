package kvstore

// Key builders for the derived sets and markers layered over the plain
// "kind:id" record keys. "decendants" keeps the spelling used on the
// wire by existing deployments.

// AncestorsKey is the set of ancestor asset IDs of id, maintained by
// index rebuilds.
func AncestorsKey(id string) string { return "ancestors:" + id }

// DescendantsKey is the set of descendant asset IDs of id.
func DescendantsKey(id string) string { return "decendants:" + id }

// SeasonKey is the set of seasonal asset IDs fetched under a season
// filter.
func SeasonKey(season string) string { return "season:" + season }

// FreshnessKey marks that at least one origin fetch has completed for
// the (rootAsset, season) filter pair.
func FreshnessKey(rootAsset, season string) string {
	return "fetched:" + rootAsset + ":" + season
}

// TokenKey maps a bearer token to a user ID.
func TokenKey(token string) string { return "user:token:" + token }

// LayersByAssetKey is the set of layer IDs attached to an asset.
func LayersByAssetKey(assetID string) string { return "layers:asset:" + assetID }

// CropHybridsKey is the set of hybrid IDs belonging to a crop.
func CropHybridsKey(cropID string) string { return "crop:hybrids:" + cropID }
