package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/security"
)

// Sealer encrypts and decrypts single token values bound to associated data.
type Sealer interface {
	Seal(value, associatedData string) (string, error)
	Open(sealed, associatedData string) (string, error)
}

type sealedTokenStore struct {
	inner  domain.TokenStore
	sealer Sealer
}

// NewSealedTokenStore encrypts access and refresh tokens before they reach
// inner. Records written before sealing was enabled are read as plaintext.
func NewSealedTokenStore(inner domain.TokenStore, sealer Sealer) domain.TokenStore {
	return &sealedTokenStore{inner: inner, sealer: sealer}
}

func (s *sealedTokenStore) Get(ctx context.Context, alias string) (*domain.ServiceToken, error) {
	token, err := s.inner.Get(ctx, alias)
	if err != nil {
		return nil, err
	}

	opened := *token
	opened.AccessToken, err = s.open(ctx, alias, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken != nil {
		refresh, err := s.open(ctx, alias, *token.RefreshToken)
		if err != nil {
			return nil, err
		}
		opened.RefreshToken = &refresh
	}
	return &opened, nil
}

func (s *sealedTokenStore) Save(ctx context.Context, token *domain.ServiceToken) error {
	sealed := *token
	var err error
	sealed.AccessToken, err = s.sealer.Seal(token.AccessToken, token.Alias)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if token.RefreshToken != nil {
		refresh, err := s.sealer.Seal(*token.RefreshToken, token.Alias)
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		sealed.RefreshToken = &refresh
	}

	if err := s.inner.Save(ctx, &sealed); err != nil {
		return err
	}
	token.CreatedAt = sealed.CreatedAt
	token.UpdatedAt = sealed.UpdatedAt
	return nil
}

func (s *sealedTokenStore) Delete(ctx context.Context, alias string) error {
	return s.inner.Delete(ctx, alias)
}

// open binds every value to its alias, so a sealed token copied into another
// service's record fails to decrypt.
func (s *sealedTokenStore) open(ctx context.Context, alias, value string) (string, error) {
	plain, err := s.sealer.Open(value, alias)
	if errors.Is(err, security.ErrNotSealed) {
		slog.WarnContext(ctx, "service token stored without sealing", "alias", alias)
		return value, nil
	}
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return plain, nil
}
