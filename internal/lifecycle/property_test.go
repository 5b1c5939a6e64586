package lifecycle

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Aman-CERP/wikisearch/internal/source"
	"github.com/Aman-CERP/wikisearch/internal/store"
)

// TestProperty_CurrentIsNewestServable checks that after any sequence of
// promote and demote calls, Current returns a promoted, populated generation
// and no newer generation qualifies.
func TestProperty_CurrentIsNewestServable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("current is the newest promoted and populated generation", prop.ForAll(
		func(ops []int) bool {
			f := newFixture(t)
			ctx := context.Background()

			gens := make([]*store.Generation, 3)
			for i := range gens {
				gens[i] = f.populated(t, ctx)
			}

			for _, op := range ops {
				g := gens[op%len(gens)]
				var err error
				if op < len(gens) {
					_, err = f.coord.Promote(ctx, g.ID)
				} else {
					_, err = f.coord.Demote(ctx, g.ID)
				}
				if err != nil {
					return false
				}

				current, err := f.coord.Current(ctx)
				if err != nil || !current.Promoted || !current.Populated {
					return false
				}
				all, err := f.coord.List(ctx)
				if err != nil {
					return false
				}
				for _, other := range all {
					if other.IsCurrentCandidate() && other.CreatedAt.After(current.CreatedAt) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

// TestProperty_PromoteReschedulesEachEntityOnce checks that an entity
// recorded outdated any number of times is rescheduled exactly once.
func TestProperty_PromoteReschedulesEachEntityOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("cutover deduplicates refs", prop.ForAll(
		func(ids []int64) bool {
			f := newFixture(t)
			ctx := context.Background()

			current, err := f.coord.Current(ctx)
			if err != nil {
				return false
			}
			next := f.populated(t, ctx)

			distinct := make(map[int64]struct{})
			for _, id := range ids {
				distinct[id] = struct{}{}
				if err := f.coord.RecordOutdated(ctx, current, source.Ref{Kind: "wiki.document", ID: id}); err != nil {
					return false
				}
			}

			if _, err := f.coord.Promote(ctx, next.ID); err != nil {
				return false
			}

			if len(ids) == 0 {
				return len(f.resch.calls) == 0
			}
			if len(f.resch.calls) != 1 {
				return false
			}
			refs := f.resch.calls[0].refs
			seen := make(map[int64]int)
			for _, r := range refs {
				seen[r.ID]++
			}
			for _, n := range seen {
				if n != 1 {
					return false
				}
			}
			return len(refs) == len(distinct)
		},
		gen.SliceOf(gen.Int64Range(1, 5)),
	))

	properties.TestingRun(t)
}
