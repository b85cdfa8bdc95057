package domain

import (
	"context"
	"time"
)

// ServiceToken is the stored linkage for one external service.
type ServiceToken struct {
	Alias        string     `gorm:"type:varchar(128);primaryKey" bson:"_id" json:"alias"`
	CreatedAt    time.Time  `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at,omitempty" json:"updated_at"`
	AccessToken  string     `gorm:"type:text;not null"             bson:"access_token" json:"-"`
	RefreshToken *string    `gorm:"type:text"                      bson:"refresh_token,omitempty" json:"-"`
	TokenType    string     `gorm:"type:varchar(32)"               bson:"token_type,omitempty" json:"token_type"`
	ExpiresAt    *time.Time `                                      bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// TableName returns the database table name for ServiceToken.
func (ServiceToken) TableName() string {
	return "service_tokens"
}

// HasRefreshToken reports whether the record can be refreshed.
func (t *ServiceToken) HasRefreshToken() bool {
	return t.RefreshToken != nil && *t.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires within d of now.
// Tokens without an expiry never expire.
func (t *ServiceToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Add(d).Before(*t.ExpiresAt)
}

// TokenStore persists tokens per service alias.
type TokenStore interface {
	Get(ctx context.Context, alias string) (*ServiceToken, error)
	// Save inserts or overwrites the record for token.Alias.
	Save(ctx context.Context, token *ServiceToken) error
	// Delete returns ErrNotFound when no record exists.
	Delete(ctx context.Context, alias string) error
}

// AuthorizationResult is the normalized outcome of a token endpoint call.
type AuthorizationResult struct {
	Success      bool
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time
}

// ToServiceToken converts a successful result into a record for alias.
func (r AuthorizationResult) ToServiceToken(alias string) *ServiceToken {
	token := &ServiceToken{
		Alias:       alias,
		AccessToken: r.AccessToken,
		TokenType:   r.TokenType,
		ExpiresAt:   r.ExpiresAt,
	}
	if r.RefreshToken != "" {
		refresh := r.RefreshToken
		token.RefreshToken = &refresh
	}
	return token
}
