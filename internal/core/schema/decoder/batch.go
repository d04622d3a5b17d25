package decoder

import (
	"context"
	"fmt"

	"github.com/zeusync/apischema/pkg/concurrent"
)

// DecodeAll decodes independent payloads of the same entity in parallel.
// Results keep input order. The first failure cancels outstanding work and
// is returned wrapped with the payload index; no results are returned with it.
func (d *Decoder) DecodeAll(ctx context.Context, entity string, raws []any) ([]*Result, error) {
	s, err := d.schemas.Lookup(entity)
	if err != nil {
		return nil, &DecodeError{Err: ErrUnresolvedReference, Entity: entity, Cause: err}
	}

	return concurrent.MapIndexed(ctx, raws, d.parallelism, func(_ context.Context, idx int, raw any) (*Result, error) {
		res, err := d.DecodeSchema(s, raw)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", idx, err)
		}
		return res, nil
	})
}
