package claims

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Edge is a directed reference between two claims: Source cites Target. The
// edge set over all non-deleted claims forms a DAG; acyclicity is checked
// before every insertion, not just at read time.
type Edge struct {
	Source string
	Target string
}

// Key returns the store key of the edge.
func (e *Edge) Key() string {
	return fmt.Sprintf("%s|%s", e.Source, e.Target)
}

// refPattern matches claim references embedded in claim content, of the form
// claim:<uuid>.
var refPattern = regexp.MustCompile(`claim:([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)

// ParseReferences extracts the set of claim IDs referenced in a piece of
// content, deduplicated, in order of first appearance.
func ParseReferences(content string) []string {
	matches := refPattern.FindAllStringSubmatch(content, -1)

	seen := map[string]bool{}
	res := []string{}
	for _, m := range matches {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}

// reachable reports whether `to` can be reached from `from` by following
// directed edges in the snapshot. It is a plain depth-first search over an
// explicit edge set, so it can be exercised without a store.
func reachable(edges []*Edge, from string, to string) bool {
	if from == to {
		return true
	}

	adjacency := map[string][]string{}
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	visited := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, adjacency[n]...)
	}
	return false
}

// Graph maintains the directed reference edges between claims and guarantees
// the edge set stays acyclic.
type Graph struct {
	store  Store
	logger *logrus.Entry
}

// NewGraph ...
func NewGraph(store Store, logger *logrus.Entry) *Graph {
	return &Graph{
		store:  store,
		logger: logger,
	}
}

// AddReferences inserts edges from sourceID to each target. Targets that do
// not exist, are deleted, or would close a cycle are skipped and logged, not
// erred; the remaining targets are still inserted. It returns the number of
// edges actually added.
func (g *Graph) AddReferences(sourceID string, targetIDs []string) (int, error) {
	added := 0

	for _, targetID := range targetIDs {
		if targetID == sourceID {
			g.logger.WithField("claim", sourceID).Debug("Skipping self-reference")
			continue
		}

		target, err := g.store.GetClaim(targetID)
		if err != nil {
			g.logger.WithFields(logrus.Fields{
				"source": sourceID,
				"target": targetID,
			}).Debug("Skipping reference to unknown claim")
			continue
		}

		if target.Status == Deleted {
			g.logger.WithFields(logrus.Fields{
				"source": sourceID,
				"target": targetID,
			}).Debug("Skipping reference to deleted claim")
			continue
		}

		snapshot, err := g.store.Edges()
		if err != nil {
			return added, err
		}

		// Inserting source->target closes a cycle exactly when source is
		// already reachable from target.
		if reachable(snapshot, targetID, sourceID) {
			g.logger.WithFields(logrus.Fields{
				"source": sourceID,
				"target": targetID,
			}).Warn("Skipping reference that would close a cycle")
			continue
		}

		if err := g.store.AddEdge(&Edge{Source: sourceID, Target: targetID}); err != nil {
			return added, err
		}
		added++
	}

	return added, nil
}

// RemoveAllEdgesFor deletes every edge touching the claim, as source or
// target. It does not touch any score and does not trigger recomputation of
// neighbouring claims.
func (g *Graph) RemoveAllEdgesFor(claimID string) (int, error) {
	removed, err := g.store.DeleteEdgesFor(claimID)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		g.logger.WithFields(logrus.Fields{
			"claim": claimID,
			"edges": removed,
		}).Debug("Pruned reference edges")
	}

	return removed, nil
}

// References returns the claim's incoming and outgoing edge endpoints.
func (g *Graph) References(claimID string) (incoming []string, outgoing []string, err error) {
	incoming, err = g.store.EdgesTo(claimID)
	if err != nil {
		return nil, nil, err
	}

	outgoing, err = g.store.EdgesFrom(claimID)
	if err != nil {
		return nil, nil, err
	}

	return incoming, outgoing, nil
}
