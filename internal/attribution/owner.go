package attribution

import "modlog/internal/loader"

// OwnershipResolver finds the plugin that owns a class.
type OwnershipResolver struct {
	meta *MetadataReader
}

func NewOwnershipResolver(meta *MetadataReader) *OwnershipResolver {
	if meta == nil {
		meta = NewMetadataReader()
	}
	return &OwnershipResolver{meta: meta}
}

// Owner returns the display name of the plugin owning cls.
func (r *OwnershipResolver) Owner(cls loader.Class) (string, bool) {
	if cls.Plugin {
		return r.meta.DisplayName(cls.Unit)
	}
	return r.OwnerOfUnit(cls.Unit)
}

// OwnerOfUnit walks up from u to the first unit whose parent is the
// module-loading unit and reads that unit's metadata.
func (r *OwnershipResolver) OwnerOfUnit(u loader.Unit) (string, bool) {
	if root, ok := PluginRoot(u); ok {
		return r.meta.DisplayName(root)
	}
	return "", false
}

// PluginRoot returns the plugin root unit at or above u.
func PluginRoot(u loader.Unit) (loader.Unit, bool) {
	for u != nil {
		p := u.Parent()
		if p != nil && p.Kind() == loader.KindModules {
			return u, true
		}
		u = p
	}
	return nil, false
}
