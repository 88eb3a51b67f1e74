package resolver

import (
	"fmt"

	"github.com/google/uuid"

	"go-mis/internal/common/errs"
	common_models "go-mis/internal/common/models"
)

// KeyGenerator hands out primary keys for parent rows synthesized during an
// import. Next returns nil when the destination's own default (identity or
// sequence) should assign the key.
type KeyGenerator interface {
	Next() interface{}
}

type autoKeys struct{}

func (autoKeys) Next() interface{} { return nil }

type uuidKeys struct{}

func (uuidKeys) Next() interface{} { return uuid.NewString() }

// maxPlusOneKeys counts up from a high-water mark seeded by the caller, which
// must have read and reserved it atomically against the destination table.
type maxPlusOneKeys struct {
	next int64
}

func (g *maxPlusOneKeys) Next() interface{} {
	v := g.next
	g.next++
	return v
}

type patternKeys struct {
	prefix string
	width  int
	next   int64
}

func (g *patternKeys) Next() interface{} {
	v := g.next
	g.next++
	if g.width > 0 {
		return fmt.Sprintf("%s%0*d", g.prefix, g.width, v)
	}
	return fmt.Sprintf("%s%d", g.prefix, v)
}

// NewKeyGenerator builds the generator for a pk strategy. seed is the current
// maximum numeric key (or sequence position) in the parent table; generated
// keys start at seed+1.
func NewKeyGenerator(strategy common_models.PKStrategy, seed int64) (KeyGenerator, error) {
	switch strategy.Mode {
	case "", common_models.PKAuto:
		return autoKeys{}, nil
	case common_models.PKUUID:
		return uuidKeys{}, nil
	case common_models.PKMaxPlusOne:
		return &maxPlusOneKeys{next: seed + 1}, nil
	case common_models.PKPattern:
		if strategy.Prefix == "" {
			return nil, errs.New(errs.KindBadRequest, "pattern pk strategy requires a prefix")
		}
		return &patternKeys{prefix: strategy.Prefix, width: strategy.Width, next: seed + 1}, nil
	}
	return nil, errs.New(errs.KindBadRequest, "unknown pk strategy mode").With("mode", strategy.Mode)
}
