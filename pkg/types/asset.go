package types

// AssetRef identifies a fungible asset type. The zero value is the chain's
// native unit.
type AssetRef = Address

// NativeAsset is the reserved reference for the native unit.
var NativeAsset AssetRef
