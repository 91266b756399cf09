package service

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

var unverifiedParser = jwt.NewParser()

// DecodeToken reads the claims of a header.payload.signature credential
// without checking the signature. Only the payload segment is decoded; the
// header and signature are never inspected. ok is false when the token does
// not have three segments or the payload is not a base64url JSON object;
// callers then rely on the profile fetch alone.
func DecodeToken(token string) (claims domain.Claims, ok bool) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 || parts[1] == "" {
		return domain.Claims{}, false
	}

	payload, err := unverifiedParser.DecodeSegment(parts[1])
	if err != nil {
		return domain.Claims{}, false
	}
	mc := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &mc); err != nil || mc == nil {
		return domain.Claims{}, false
	}

	sub := claimString(mc["sub"])
	userID := claimString(mc["userId"])
	if userID == "" {
		userID = claimString(mc["id"])
	}
	if userID == "" {
		userID = sub
	}

	return domain.Claims{
		Email:  sub,
		UserID: userID,
		Role:   domain.NormalizeRole(claimString(mc["role"])),
	}, true
}

// claimString renders a JSON scalar claim. Numbers come back from
// encoding/json as float64 and are printed without an exponent.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
