package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messenger-lab/errors"
)

func TestTokenService_RoundTrip(t *testing.T) {
	req := require.New(t)
	service := NewTokenService("test-secret")

	token, err := service.Generate("alice", time.Hour)
	req.NoError(err)

	userID, err := service.Validate(token)
	req.NoError(err)
	req.Equal("alice", userID)
}

func TestTokenService_Rejects_Garbage(t *testing.T) {
	req := require.New(t)
	service := NewTokenService("test-secret")

	_, err := service.Validate("not-a-token")
	req.ErrorIs(err, errors.ErrInvalidToken)

	_, err = service.Validate("")
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokenService_Rejects_Wrong_Key(t *testing.T) {
	req := require.New(t)

	token, err := NewTokenService("secret-a").Generate("alice", time.Hour)
	req.NoError(err)

	_, err = NewTokenService("secret-b").Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokenService_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	service := NewTokenService("test-secret")

	token, err := service.Generate("alice", -time.Minute)
	req.NoError(err)

	_, err = service.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokenService_Rejects_Empty_UserID(t *testing.T) {
	req := require.New(t)
	service := NewTokenService("test-secret")

	token, err := service.Generate("", time.Hour)
	req.NoError(err)

	_, err = service.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)
}
