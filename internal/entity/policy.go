package entity

// Policy decides whether actor may see or write a field of e. A nil actor is
// an anonymous caller.
type Policy func(e, actor Entity) bool

// Always allows everyone.
func Always(Entity, Entity) bool { return true }

// Never allows no one.
func Never(Entity, Entity) bool { return false }

// Self allows only the entity itself.
func Self(e, actor Entity) bool {
	return SameEntity(e, actor)
}

// OwnedBy allows the actor whose identity is stored in owner.
func OwnedBy(owner *Field[string]) Policy {
	return func(e, actor Entity) bool {
		return actor != nil && owner.Get(e) == actor.StorageKey()
	}
}

// AnyOf allows when any policy allows.
func AnyOf(ps ...Policy) Policy {
	return func(e, actor Entity) bool {
		for _, p := range ps {
			if p(e, actor) {
				return true
			}
		}
		return false
	}
}

// AllOf allows when every policy allows.
func AllOf(ps ...Policy) Policy {
	return func(e, actor Entity) bool {
		for _, p := range ps {
			if !p(e, actor) {
				return false
			}
		}
		return true
	}
}

// SameEntity reports whether a and b denote the same stored entity.
func SameEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Class() == b.Class() && a.StorageKey() == b.StorageKey()
}
