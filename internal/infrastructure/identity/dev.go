package identity

import (
	"context"
	"errors"
	"strings"

	"threadline/internal/domain/auth"
	"threadline/internal/domain/user"
)

// DevResolver accepts codes of the form "<prefix><name>" and trusts the name as the subject.
// It exists for local development and tests only.
type DevResolver struct {
	Prefix string
}

var _ auth.IdentityResolver = (*DevResolver)(nil)

func (r *DevResolver) Resolve(_ context.Context, code, _ string) (user.Identity, error) {
	name, ok := strings.CutPrefix(code, r.Prefix)
	name = strings.ToLower(strings.TrimSpace(name))
	if !ok || name == "" {
		return user.Identity{}, errors.New("not a development login code")
	}
	return user.Identity{
		Subject: "dev|" + name,
		Email:   name + "@dev.local",
		Name:    name,
	}, nil
}
