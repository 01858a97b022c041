package controller

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrs(n int) []string {
	list := make([]string, n)
	for i := range list {
		list[i] = fmt.Sprintf("localhost:55%02d/0", i)
	}
	return list
}

func seedPtr(v int64) *int64 { return &v }

func TestTopologySymmetricIrreflexive(t *testing.T) {
	tm := NewTopologyManager(1, seedPtr(42))
	topology := tm.Build(addrs(7))

	for addr, neighbors := range topology {
		for _, other := range neighbors {
			assert.NotEqual(t, addr, other, "topology must be irreflexive")
			assert.Contains(t, topology[other], addr, "topology must be symmetric")
		}
	}
}

func TestTopologyConnected(t *testing.T) {
	for _, n := range []int{2, 3, 5, 12} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			tm := NewTopologyManager(0, seedPtr(1))
			topology := tm.Build(addrs(n))
			require.Len(t, topology, n)

			visited := map[string]bool{}
			var walk func(string)
			walk = func(addr string) {
				if visited[addr] {
					return
				}
				visited[addr] = true
				for _, other := range topology[addr] {
					walk(other)
				}
			}
			walk(addrs(n)[0])
			assert.Len(t, visited, n, "ring must connect all agents")
		})
	}
}

func TestTopologySingleAgent(t *testing.T) {
	tm := NewTopologyManager(1, seedPtr(7))
	topology := tm.Build(addrs(1))

	require.Len(t, topology, 1)
	assert.Empty(t, topology[addrs(1)[0]])
}

func TestTopologyDeterministicWithSeed(t *testing.T) {
	a := NewTopologyManager(2, seedPtr(99)).Build(addrs(9))
	b := NewTopologyManager(2, seedPtr(99)).Build(addrs(9))
	assert.Equal(t, a, b)
}

func TestTopologyEdgesCanonical(t *testing.T) {
	tm := NewTopologyManager(0, nil)
	topology := tm.Build([]string{"h:2/0", "h:1/0", "h:3/0"})
	names := map[string]string{"h:1/0": "u1", "h:2/0": "u2", "h:3/0": "u3"}

	edges := topology.Edges(names)
	require.Len(t, edges, 3)
	for i, e := range edges {
		assert.Less(t, e[0], e[1], "edge %d must be name-ordered", i)
	}
	assert.Equal(t, [][2]string{{"u1", "u2"}, {"u1", "u3"}, {"u2", "u3"}}, edges)
}
