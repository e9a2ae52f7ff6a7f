package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository"
)

type AuthService interface {
	// AuthenticateDevice finds or registers the actor behind a device
	// fingerprint and issues a device token.
	AuthenticateDevice(ctx context.Context, fingerprint string) (string, time.Time, *models.Actor, error)
	// ParseToken verifies a device token and returns its actor id.
	ParseToken(token string) (uuid.UUID, error)
}

type authService struct {
	actors         repository.ActorRepository
	jwtSecret      []byte
	fingerprintKey []byte
	logger         *zap.Logger
	now            func() time.Time
}

func NewAuthService(actors repository.ActorRepository, jwtSecret, fingerprintKey string, logger *zap.Logger) AuthService {
	return &authService{
		actors:         actors,
		jwtSecret:      []byte(jwtSecret),
		fingerprintKey: []byte(fingerprintKey),
		logger:         logger,
		now:            time.Now,
	}
}

func (s *authService) AuthenticateDevice(ctx context.Context, fingerprint string) (string, time.Time, *models.Actor, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return "", time.Time{}, nil, models.NewValidationError("device_fingerprint", "device fingerprint is required")
	}
	digest, err := s.digest(fingerprint)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	now := s.now()
	actor, err := s.actors.GetByFingerprint(ctx, digest)
	switch {
	case errors.Is(err, models.ErrNotFound):
		actor = models.NewActor(digest, now)
		if err := s.actors.Create(ctx, actor); err != nil {
			// A concurrent first login may have registered the device already.
			existing, lookupErr := s.actors.GetByFingerprint(ctx, digest)
			if lookupErr != nil {
				s.logger.Error("Failed to register actor", zap.Error(err))
				return "", time.Time{}, nil, fmt.Errorf("failed to register actor: %w", err)
			}
			actor = existing
		} else {
			s.logger.Info("Actor registered", zap.String("actor_id", actor.ID.String()))
		}
	case err != nil:
		s.logger.Error("Failed to look up actor", zap.Error(err))
		return "", time.Time{}, nil, fmt.Errorf("failed to look up actor: %w", err)
	}

	if !actor.IsActive() {
		return "", time.Time{}, nil, &models.TrustError{Reason: "actor is " + actor.Status}
	}

	expirationTime := now.Add(models.TokenExpiry)
	claims := &models.Claims{
		ActorID: actor.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("Failed to generate JWT token", zap.Error(err))
		return "", time.Time{}, nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, expirationTime, actor, nil
}

func (s *authService) ParseToken(tokenString string) (uuid.UUID, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	if !token.Valid {
		return uuid.Nil, models.ErrUnauthorized
	}
	actorID, err := uuid.Parse(claims.ActorID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad actor id claim", models.ErrUnauthorized)
	}
	return actorID, nil
}

// digest is a keyed hash so raw fingerprints never reach storage.
func (s *authService) digest(fingerprint string) (string, error) {
	h, err := blake2b.New256(s.fingerprintKey)
	if err != nil {
		return "", fmt.Errorf("fingerprint key: %w", err)
	}
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil)), nil
}
