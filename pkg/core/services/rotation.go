package services

// rotatingVisits are the visit numbers spread across providers. Every other
// visit goes to the default provider first.
var rotatingVisits = []int{2, 3, 4}

// providerRotation resolves which providers to try for a visit number.
// Slot 0 is the default provider.
type providerRotation struct {
	names  []string
	chains map[int][]int
}

func newProviderRotation(names []string) *providerRotation {
	r := &providerRotation{names: names, chains: make(map[int][]int)}
	n := len(names)
	if n == 0 {
		return r
	}
	for _, visit := range rotatingVisits {
		r.chains[visit] = chainFrom((visit-1)%n, n)
	}
	return r
}

// chainFrom starts at slot start, looks ahead with wraparound and ends with the default.
func chainFrom(start, n int) []int {
	if start == 0 {
		return defaultChain(n)
	}
	chain := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if slot := (start + i) % n; slot != 0 {
			chain = append(chain, slot)
		}
	}
	return append(chain, 0)
}

func defaultChain(n int) []int {
	chain := make([]int, n)
	for i := range chain {
		chain[i] = i
	}
	return chain
}

func (r *providerRotation) chain(visit int) []int {
	if c, ok := r.chains[visit]; ok {
		return c
	}
	return defaultChain(len(r.names))
}

// pick returns at most limit usable provider names for visit, in try order.
func (r *providerRotation) pick(visit, limit int, usable func(name string) bool) []string {
	var out []string
	for _, slot := range r.chain(visit) {
		if name := r.names[slot]; usable(name) {
			out = append(out, name)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
