package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"reservation-system/apperror"
	"reservation-system/monitoring"
)

type TokenType string

const (
	TokenReservation TokenType = "reservation"
	TokenResource    TokenType = "resource"
)

// AccessClaims is the payload embedded in a scannable QR code. The token
// field is a deterministic keyed hash, so a claim can be re-verified from
// the shared secret alone with no persisted token state.
type AccessClaims struct {
	Type          TokenType `json:"type"`
	ReservationID string    `json:"reservation_id,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	SubjectID     string    `json:"subject_id,omitempty"`
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Encode renders the claims as the JSON string carried by the QR code.
func (c *AccessClaims) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TokenService issues and verifies capability tokens. Verification is a
// pure computation over the claims and the process-wide secret; lifecycle
// compatibility is checked separately by the access gate.
type TokenService struct {
	secret string
	clock  Clock
}

func NewTokenService(secret string, clock Clock) *TokenService {
	return &TokenService{secret: secret, clock: clock}
}

func (s *TokenService) IssueReservationToken(reservationID, subjectID string, ttl time.Duration) (*AccessClaims, error) {
	if reservationID == "" || subjectID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "reservation id and subject id are required")
	}
	if ttl <= 0 {
		return nil, apperror.New(apperror.KindInvalidArgument, "token ttl must be positive")
	}

	now := s.clock.Now()
	return &AccessClaims{
		Type:          TokenReservation,
		ReservationID: reservationID,
		SubjectID:     subjectID,
		Token:         s.signReservation(reservationID, subjectID),
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
	}, nil
}

func (s *TokenService) IssueResourceToken(resourceID string, ttl time.Duration) (*AccessClaims, error) {
	if resourceID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "resource id is required")
	}
	if ttl <= 0 {
		return nil, apperror.New(apperror.KindInvalidArgument, "token ttl must be positive")
	}

	now := s.clock.Now()
	return &AccessClaims{
		Type:       TokenResource,
		ResourceID: resourceID,
		Token:      s.signResource(resourceID),
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// Verify parses raw claims, checks expiry against the clock and recomputes
// the expected signature, comparing in constant time. It never consults the
// reservation store.
func (s *TokenService) Verify(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		monitoring.TrackTokenVerification("malformed")
		return nil, apperror.Wrap(apperror.KindTokenMalformed, "token is not valid JSON", err)
	}
	if claims.Token == "" {
		monitoring.TrackTokenVerification("malformed")
		return nil, apperror.New(apperror.KindTokenMalformed, "token signature is missing")
	}

	if claims.ExpiresAt.IsZero() {
		monitoring.TrackTokenVerification("malformed")
		return nil, apperror.New(apperror.KindTokenMalformed, "token expiry is missing")
	}
	if !s.clock.Now().Before(claims.ExpiresAt) {
		monitoring.TrackTokenVerification("expired")
		return nil, apperror.New(apperror.KindTokenExpired, "token has expired")
	}

	var expected string
	switch claims.Type {
	case TokenReservation:
		if claims.ReservationID == "" || claims.SubjectID == "" {
			monitoring.TrackTokenVerification("malformed")
			return nil, apperror.New(apperror.KindTokenMalformed, "reservation token is missing identity claims")
		}
		expected = s.signReservation(claims.ReservationID, claims.SubjectID)
	case TokenResource:
		if claims.ResourceID == "" {
			monitoring.TrackTokenVerification("malformed")
			return nil, apperror.New(apperror.KindTokenMalformed, "resource token is missing resource id")
		}
		expected = s.signResource(claims.ResourceID)
	default:
		monitoring.TrackTokenVerification("malformed")
		return nil, apperror.Newf(apperror.KindTokenMalformed, "unknown token type %q", claims.Type)
	}

	if !hmac.Equal([]byte(expected), []byte(claims.Token)) {
		monitoring.TrackTokenVerification("invalid")
		return nil, apperror.New(apperror.KindTokenInvalid, "token signature mismatch")
	}

	monitoring.TrackTokenVerification("ok")
	return &claims, nil
}

func (s *TokenService) signReservation(reservationID, subjectID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", reservationID, subjectID, s.secret)))
	return hex.EncodeToString(sum[:])
}

func (s *TokenService) signResource(resourceID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("resource-%s-%s", resourceID, s.secret)))
	return hex.EncodeToString(sum[:])
}
