package controller

import (
	"math/rand"
	"sort"
	"time"
)

// Topology maps every agent address to its neighbor addresses. All
// connections are symmetric and irreflexive.
type Topology map[string][]string

// TopologyManager builds the small-world neighbor graph of a
// negotiation: a ring over the address-sorted agents plus up to
// |A| * phi random extra edges.
type TopologyManager struct {
	phi    float64
	seed   int64
	seeded bool
}

// NewTopologyManager creates a manager. A nil seed draws a fresh PRNG
// seed per topology.
func NewTopologyManager(phi float64, seed *int64) *TopologyManager {
	tm := &TopologyManager{phi: phi}
	if seed != nil {
		tm.seed = *seed
		tm.seeded = true
	}
	return tm
}

// Build constructs the topology for the given agent addresses.
func (tm *TopologyManager) Build(addrs []string) Topology {
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)

	sets := make(map[string]map[string]struct{}, len(sorted))
	for _, addr := range sorted {
		sets[addr] = make(map[string]struct{})
	}
	if len(sorted) > 1 {
		tm.buildRing(sorted, sets)
		tm.addRandomEdges(sorted, sets)
	}

	topology := make(Topology, len(sets))
	for addr, neighbors := range sets {
		list := make([]string, 0, len(neighbors))
		for n := range neighbors {
			list = append(list, n)
		}
		sort.Strings(list)
		topology[addr] = list
	}
	return topology
}

func (tm *TopologyManager) buildRing(sorted []string, sets map[string]map[string]struct{}) {
	n := len(sorted)
	for i, addr := range sorted {
		left := sorted[(i-1+n)%n]
		right := sorted[(i+1)%n]
		sets[addr][left] = struct{}{}
		sets[addr][right] = struct{}{}
	}
}

func (tm *TopologyManager) addRandomEdges(sorted []string, sets map[string]map[string]struct{}) {
	seed := tm.seed
	if !tm.seeded {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	// At most n * phi extra connections; self-pairs are skipped and
	// duplicates are idempotent.
	n := len(sorted)
	for i := 0; i < int(float64(n)*tm.phi); i++ {
		a := sorted[rnd.Intn(n)]
		b := sorted[rnd.Intn(n)]
		if a == b {
			continue
		}
		sets[a][b] = struct{}{}
		sets[b][a] = struct{}{}
	}
}

// Edges returns the topology as canonicalized bidirectional edges
// (name_a, name_b) with name_a < name_b, sorted. names maps agent
// addresses to unit names.
func (t Topology) Edges(names map[string]string) [][2]string {
	nameOf := func(addr string) string {
		if name, ok := names[addr]; ok && name != "" {
			return name
		}
		return addr
	}

	seen := make(map[[2]string]struct{})
	var edges [][2]string
	for addr, neighbors := range t {
		for _, other := range neighbors {
			a, b := nameOf(addr), nameOf(other)
			if a > b {
				a, b = b, a
			}
			edge := [2]string{a, b}
			if _, ok := seen[edge]; ok {
				continue
			}
			seen[edge] = struct{}{}
			edges = append(edges, edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}
