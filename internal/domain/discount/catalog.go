package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Resolver resolves a discount id to an applicable definition.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Definition, error)
}

// Catalog implements Resolver on top of a Repository.
type Catalog struct {
	repo Repository
	now  func() time.Time
}

// NewCatalog creates a Catalog backed by the given Repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo, now: time.Now}
}

// Resolve looks up the definition and rejects inactive, expired or malformed
// entries.
func (c *Catalog) Resolve(ctx context.Context, id string) (*Definition, error) {
	def, err := c.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "discount %q", id)
		}
		return nil, errors.Wrap(err, "lookup discount")
	}
	if !def.Active {
		return nil, errors.Wrapf(ErrInactive, "discount %q", id)
	}
	if def.ExpiresAt != nil && !c.now().Before(*def.ExpiresAt) {
		return nil, errors.Wrapf(ErrExpired, "discount %q", id)
	}
	if err := CheckValue(def.Type, def.Value); err != nil {
		return nil, errors.Wrapf(err, "discount %q", id)
	}
	return def, nil
}
