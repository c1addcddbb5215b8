package behavior

// Registry collects the distinct nodes of a decision graph. Shared nodes are
// counted once, by identity.
type Registry struct {
	seen  map[Node]int
	nodes []Node
}

func NewRegistry(roots ...Node) *Registry {
	r := &Registry{seen: map[Node]int{}}
	for _, root := range roots {
		r.Add(root)
	}
	return r
}

// Add walks n depth-first, skipping nodes already registered.
func (r *Registry) Add(n Node) {
	if n == nil {
		return
	}
	if _, ok := r.seen[n]; ok {
		return
	}
	r.seen[n] = len(r.nodes)
	r.nodes = append(r.nodes, n)
	for _, c := range n.Children() {
		r.Add(c)
	}
}

func (r *Registry) Len() int { return len(r.nodes) }

// Index returns the registration order of n.
func (r *Registry) Index(n Node) (int, bool) {
	i, ok := r.seen[n]
	return i, ok
}

func (r *Registry) Nodes() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Parents counts how many distinct parents reference each node.
func (r *Registry) Parents() map[Node]int {
	out := map[Node]int{}
	for _, n := range r.nodes {
		seen := map[Node]bool{}
		for _, c := range n.Children() {
			if seen[c] {
				continue
			}
			seen[c] = true
			out[c]++
		}
	}
	return out
}
