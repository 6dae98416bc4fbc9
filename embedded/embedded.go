package embedded

type Element interface {
	Kind() uint64
	Id() string
}

// Edge is one registered (state, action) -> destination arc.
type Edge struct {
	Kind   uint64
	Source string
	Action string
	Target string
}

type Model interface {
	Element
	InitialState() string
	States() []string
	Edges() []Edge
}
