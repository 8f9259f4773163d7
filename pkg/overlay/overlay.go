// Package overlay decides which items of a new batch need computation,
// when a prior batch over overlapping items may still be running.
//
// Items are identified by ids and compared by fingerprints (content hashes).
// There are three views of them:
//
//   - current: items which are fully processed and committed.
//   - depends: items of a prior batch, which may not be complete yet.
//   - updated: candidate new input.
package overlay

import (
	"context"
	"sort"
)

// Snapshot maps item ids to fingerprints.
type Snapshot map[string]string

// Ids returns ids in the snapshot, sorted.
func (s Snapshot) Ids() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsNew tells whether the updated item is new work.
//
// It is new iff its fingerprint matches neither of the depends and the current.
// A view the item is absent from matches nothing.
func IsNew(id string, fingerprint string, depends, current Snapshot) bool {
	// depends goes first: it is fresher than current.
	if fp, ok := depends[id]; ok && fp == fingerprint {
		return false
	}
	if fp, ok := current[id]; ok && fp == fingerprint {
		return false
	}
	return true
}

// Partition classifies items in updated into ones to compute and ones to skip.
//
// Both are sorted.
func Partition(updated, depends, current Snapshot) (toCompute []string, toSkip []string) {
	toCompute = []string{}
	toSkip = []string{}
	for _, id := range updated.Ids() {
		if IsNew(id, updated[id], depends, current) {
			toCompute = append(toCompute, id)
		} else {
			toSkip = append(toSkip, id)
		}
	}
	return toCompute, toSkip
}

// Merge makes the view of all items for a new batch.
//
// For items in more than one snapshot, updated wins over depends, and depends over current.
func Merge(current, depends, updated Snapshot) Snapshot {
	all := Snapshot{}
	for _, s := range []Snapshot{current, depends, updated} {
		for id, fp := range s {
			all[id] = fp
		}
	}
	return all
}

// Pair of item ids. Query < Subject.
type Pair struct {
	Query   string `json:"query" yaml:"query"`
	Subject string `json:"subject" yaml:"subject"`
}

// NewPair orders a and b.
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{Query: a, Subject: b}
}

// Name is the pair as one string, like "a_b".
func (p Pair) Name() string {
	return p.Query + "_" + p.Subject
}

// Pairs returns every unordered pair of distinct ids, sorted.
func Pairs(ids []string) []Pair {
	uniq := map[string]struct{}{}
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	pairs := make([]Pair, 0, len(sorted)*(len(sorted)-1)/2)
	for i, q := range sorted {
		for _, s := range sorted[i+1:] {
			pairs = append(pairs, Pair{Query: q, Subject: s})
		}
	}
	return pairs
}

// SplitPairs separates pairs which involve any new item from the others.
//
// Results of pairs in reuse are still valid from the previous batches.
func SplitPairs(pairs []Pair, newItems []string) (compute []Pair, reuse []Pair) {
	isNew := map[string]struct{}{}
	for _, id := range newItems {
		isNew[id] = struct{}{}
	}
	compute = []Pair{}
	reuse = []Pair{}
	for _, p := range pairs {
		_, q := isNew[p.Query]
		_, s := isNew[p.Subject]
		if q || s {
			compute = append(compute, p)
		} else {
			reuse = append(reuse, p)
		}
	}
	return compute, reuse
}

// CompletionChecker is satisfied by dones.Dones.
type CompletionChecker interface {
	AllDone(ctx context.Context, ns string, names []string) (bool, error)
}

// DependsIfIncomplete returns snap while the prior batch (tasks names in ns) is not all done.
//
// Once the prior batch is complete its results are committed into current,
// so its view should not overlay anymore; then an empty snapshot is returned.
func DependsIfIncomplete(ctx context.Context, checker CompletionChecker, ns string, names []string, snap Snapshot) (Snapshot, error) {
	if ns == "" {
		return Snapshot{}, nil
	}
	done, err := checker.AllDone(ctx, ns, names)
	if err != nil {
		return nil, err
	}
	if done {
		return Snapshot{}, nil
	}
	return snap, nil
}
