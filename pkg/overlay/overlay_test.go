package overlay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roundup-project/roundup/pkg/cmp"
	"github.com/roundup-project/roundup/pkg/dones"
	"github.com/roundup-project/roundup/pkg/kvstore/memory"
	"github.com/roundup-project/roundup/pkg/overlay"
	"github.com/roundup-project/roundup/pkg/utils/try"
)

func TestPartition(t *testing.T) {
	for name, testcase := range map[string]struct {
		updated, depends, current overlay.Snapshot
		compute, skip             []string
	}{
		"when updated matches depends, it is skipped even if current differs": {
			current: overlay.Snapshot{"g": "a"},
			depends: overlay.Snapshot{"g": "b"},
			updated: overlay.Snapshot{"g": "b"},
			compute: []string{}, skip: []string{"g"},
		},
		"when updated differs from both, it is computed": {
			current: overlay.Snapshot{"g": "a"},
			depends: overlay.Snapshot{"g": "b"},
			updated: overlay.Snapshot{"g": "c"},
			compute: []string{"g"}, skip: []string{},
		},
		"when there is no depends, current decides": {
			current: overlay.Snapshot{"g": "a", "h": "a"},
			depends: overlay.Snapshot{},
			updated: overlay.Snapshot{"g": "a", "h": "b"},
			compute: []string{"h"}, skip: []string{"g"},
		},
		"items in neither view are new": {
			current: overlay.Snapshot{"g": "a"},
			depends: overlay.Snapshot{"h": "b"},
			updated: overlay.Snapshot{"i": "a"},
			compute: []string{"i"}, skip: []string{},
		},
		"nil views are empty views": {
			updated: overlay.Snapshot{"b": "x", "a": "y"},
			compute: []string{"a", "b"}, skip: []string{},
		},
		"items only in current or depends are not mentioned": {
			current: overlay.Snapshot{"g": "a", "x": "1"},
			depends: overlay.Snapshot{"y": "2"},
			updated: overlay.Snapshot{"g": "a"},
			compute: []string{}, skip: []string{"g"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			compute, skip := overlay.Partition(testcase.updated, testcase.depends, testcase.current)
			if !cmp.SliceEq(compute, testcase.compute) || !cmp.SliceEq(skip, testcase.skip) {
				t.Errorf("(compute, skip) = (%v, %v), want (%v, %v)", compute, skip, testcase.compute, testcase.skip)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	actual := overlay.Merge(
		overlay.Snapshot{"a": "c1", "b": "c2", "c": "c3"},
		overlay.Snapshot{"b": "d2", "c": "d3"},
		overlay.Snapshot{"c": "u3", "d": "u4"},
	)
	expected := overlay.Snapshot{"a": "c1", "b": "d2", "c": "u3", "d": "u4"}
	if !cmp.MapEq(actual, expected) {
		t.Errorf("actual = %v", actual)
	}
}

func TestPairs(t *testing.T) {
	t.Run("every unordered pair appears once, ordered", func(t *testing.T) {
		actual := overlay.Pairs([]string{"c", "a", "b", "a"})
		expected := []overlay.Pair{
			{Query: "a", Subject: "b"},
			{Query: "a", Subject: "c"},
			{Query: "b", Subject: "c"},
		}
		if !cmp.SliceEq(actual, expected) {
			t.Errorf("actual = %v", actual)
		}
	})

	t.Run("one item makes no pairs", func(t *testing.T) {
		if actual := overlay.Pairs([]string{"a"}); len(actual) != 0 {
			t.Errorf("actual = %v", actual)
		}
	})

	t.Run("a pair is named after its ordered items", func(t *testing.T) {
		if name := overlay.NewPair("z", "a").Name(); name != "a_z" {
			t.Errorf("name = %s", name)
		}
	})
}

func TestSplitPairs(t *testing.T) {
	pairs := overlay.Pairs([]string{"a", "b", "c", "d"})
	compute, reuse := overlay.SplitPairs(pairs, []string{"c"})

	expectedCompute := []overlay.Pair{
		{Query: "a", Subject: "c"}, {Query: "b", Subject: "c"}, {Query: "c", Subject: "d"},
	}
	expectedReuse := []overlay.Pair{
		{Query: "a", Subject: "b"}, {Query: "a", Subject: "d"}, {Query: "b", Subject: "d"},
	}
	if !cmp.SliceEq(compute, expectedCompute) || !cmp.SliceEq(reuse, expectedReuse) {
		t.Errorf("(compute, reuse) = (%v, %v)", compute, reuse)
	}
}

func TestScan(t *testing.T) {
	write := func(t *testing.T, path string, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("files are fingerprinted by MD5 of their contents", func(t *testing.T) {
		dir := t.TempDir()
		write(t, filepath.Join(dir, "g1.fa"), "hello\n")
		write(t, filepath.Join(dir, ".hidden"), "ignored")

		actual := try.To(overlay.Scan(dir)).OrFatal(t)
		expected := overlay.Snapshot{"g1.fa": "b1946ac92492d2347c6235b4d2611184"}
		if !cmp.MapEq(actual, expected) {
			t.Errorf("actual = %v", actual)
		}
	})

	t.Run("directories with the same files have the same fingerprint", func(t *testing.T) {
		current := t.TempDir()
		updated := t.TempDir()
		for _, root := range []string{current, updated} {
			write(t, filepath.Join(root, "g1", "g1.fa"), ">seq\nACGT\n")
			write(t, filepath.Join(root, "g1", "index", "g1.idx"), "idx")
		}
		write(t, filepath.Join(current, "g2", "g2.fa"), ">seq\nACGT\n")
		write(t, filepath.Join(updated, "g2", "g2.fa"), ">seq\nACGTT\n")

		c := try.To(overlay.Scan(current)).OrFatal(t)
		u := try.To(overlay.Scan(updated)).OrFatal(t)
		compute, skip := overlay.Partition(u, nil, c)
		if !cmp.SliceEq(compute, []string{"g2"}) || !cmp.SliceEq(skip, []string{"g1"}) {
			t.Errorf("(compute, skip) = (%v, %v)", compute, skip)
		}
	})

	t.Run("renaming a file inside a directory changes the fingerprint", func(t *testing.T) {
		a := t.TempDir()
		b := t.TempDir()
		write(t, filepath.Join(a, "g1", "x.fa"), "ACGT")
		write(t, filepath.Join(b, "g1", "y.fa"), "ACGT")
		if try.To(overlay.Scan(a)).OrFatal(t)["g1"] == try.To(overlay.Scan(b)).OrFatal(t)["g1"] {
			t.Error("same fingerprint")
		}
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		actual := try.To(overlay.Scan(filepath.Join(t.TempDir(), "missing"))).OrFatal(t)
		if len(actual) != 0 {
			t.Errorf("actual = %v", actual)
		}
	})
}

type failingChecker struct{ err error }

func (f failingChecker) AllDone(ctx context.Context, ns string, names []string) (bool, error) {
	return false, f.err
}

func TestDependsIfIncomplete(t *testing.T) {
	ctx := context.Background()
	snap := overlay.Snapshot{"g": "b"}

	t.Run("while the prior batch is incomplete, its view is used", func(t *testing.T) {
		d := dones.New(memory.New())
		if err := d.Mark(ctx, "prior", "a_g"); err != nil {
			t.Fatal(err)
		}
		actual := try.To(overlay.DependsIfIncomplete(ctx, d, "prior", []string{"a_g", "b_g"}, snap)).OrFatal(t)
		if !cmp.MapEq(actual, snap) {
			t.Errorf("actual = %v", actual)
		}
	})

	t.Run("once the prior batch is complete, its view is dropped", func(t *testing.T) {
		d := dones.New(memory.New())
		for _, name := range []string{"a_g", "b_g"} {
			if err := d.Mark(ctx, "prior", name); err != nil {
				t.Fatal(err)
			}
		}
		actual := try.To(overlay.DependsIfIncomplete(ctx, d, "prior", []string{"a_g", "b_g"}, snap)).OrFatal(t)
		if len(actual) != 0 {
			t.Errorf("actual = %v", actual)
		}
	})

	t.Run("no prior namespace means no depends view", func(t *testing.T) {
		actual := try.To(overlay.DependsIfIncomplete(ctx, failingChecker{err: errors.New("unreachable")}, "", nil, snap)).OrFatal(t)
		if len(actual) != 0 {
			t.Errorf("actual = %v", actual)
		}
	})

	t.Run("checker failure is returned", func(t *testing.T) {
		expectedErr := errors.New("fake error")
		if _, err := overlay.DependsIfIncomplete(ctx, failingChecker{err: expectedErr}, "prior", []string{"x"}, snap); !errors.Is(err, expectedErr) {
			t.Errorf("err = %v", err)
		}
	})
}
