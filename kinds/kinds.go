package kinds

const (
	length   = 64
	idLength = 8
	depthMax = length / idLength
	idMask   = (1 << idLength) - 1
)

// Kind packs id and the ids of every base into a single uint64, one byte per
// level, so that IsKind can answer ancestry questions without a lookup table.
func Kind(id uint64, bases ...uint64) uint64 {
	id = id & idMask
	ids := make(map[uint64]struct{})

	for _, base := range bases {
		for j := 0; j < depthMax; j++ {
			baseId := (base >> (idLength * j)) & idMask
			if baseId == 0 {
				break
			}
			if _, ok := ids[baseId]; !ok {
				ids[baseId] = struct{}{}
				id |= baseId << (idLength * len(ids))
			}
		}
	}
	return id
}

// IsKind reports whether kind is, or derives from, any of bases.
func IsKind(kind uint64, bases ...uint64) bool {
	for _, base := range bases {
		baseId := base & idMask
		if kind == baseId {
			return true
		}
		for i := 0; i < depthMax; i++ {
			currentId := (kind >> (idLength * i)) & idMask
			if currentId == baseId {
				return true
			}
		}
	}
	return false
}

var labels = []struct {
	kind  uint64
	label string
}{
	{Internal, "internal action"},
	{Shorthand, "shorthand transition"},
	{Effect, "effect"},
	{Reducer, "reducer"},
	{Instance, "instance"},
	{Subscriber, "subscriber"},
	{Cleanup, "cleanup"},
	{Initial, "initial"},
	{State, "state"},
	{Action, "action"},
	{Transition, "transition"},
	{Spec, "spec"},
	{Behavior, "behavior"},
	{Vertex, "vertex"},
}

// Name returns a lowercase label for kind, falling back to its nearest
// labelled base for kinds derived outside this package.
func Name(kind uint64) string {
	for _, entry := range labels {
		if kind == entry.kind {
			return entry.label
		}
	}
	for _, entry := range labels {
		if IsKind(kind, entry.kind) {
			return entry.label
		}
	}
	return "element"
}

var (
	Element    = Kind(1)
	Vertex     = Kind(2, Element)
	State      = Kind(3, Vertex)
	Action     = Kind(5, Element)
	Internal   = Kind(6, Action)
	Behavior   = Kind(7, Element)
	Effect     = Kind(8, Behavior)
	Transition = Kind(9, Element)
	Shorthand  = Kind(10, Transition)
	Reducer    = Kind(11, Behavior)
	Initial    = Kind(12, Vertex)
	Spec       = Kind(13, Element)
	Instance   = Kind(14, Behavior)
	Subscriber = Kind(15, Behavior)
	Cleanup    = Kind(16, Behavior)
)
