package config

import (
	"context"

	"github.com/viant/scy/cred/secret"
)

// scyResolver looks parameters up in the remote secret store.
type scyResolver struct {
	svc *secret.Service
}

// NewSecretResolver constructs the production secret resolver.
func NewSecretResolver() SecretResolver {
	return &scyResolver{svc: secret.New()}
}

func (r *scyResolver) Resolve(ctx context.Context, name string) (string, error) {
	sec, err := r.svc.Lookup(ctx, secret.Resource(name))
	if err != nil {
		return "", err
	}
	return sec.String(), nil
}
