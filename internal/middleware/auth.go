package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/service"
)

// ClaimsVerifier checks the compact signed claims issued by the identity
// service: "uid.role.expUnix.hmac", HMAC-SHA256 over the first three parts
// with the shared signing secret. The embedded role is still untrusted —
// the guard re-verifies it against the role store downstream.
type ClaimsVerifier struct {
	secret []byte
}

func NewClaimsVerifier(secret string) *ClaimsVerifier {
	return &ClaimsVerifier{secret: []byte(secret)}
}

// Verify parses and checks a bearer credential. Every failure mode returns
// the same ErrUnauthenticated.
func (v *ClaimsVerifier) Verify(bearer string) (service.Claims, error) {
	parts := strings.Split(bearer, ".")
	if len(parts) != 4 {
		return service.Claims{}, model.ErrUnauthenticated
	}
	uid, role, expRaw, sig := parts[0], parts[1], parts[2], parts[3]
	if uid == "" || role == "" {
		return service.Claims{}, model.ErrUnauthenticated
	}

	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return service.Claims{}, model.ErrUnauthenticated
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(uid + "." + role + "." + expRaw))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return service.Claims{}, model.ErrUnauthenticated
	}

	return service.Claims{UID: uid, Role: role}, nil
}

// Sign produces a credential for the given claims (used by tests and local
// tooling; production credentials come from the identity service).
func (v *ClaimsVerifier) Sign(uid, role string, expiresAt time.Time) string {
	expRaw := strconv.FormatInt(expiresAt.Unix(), 10)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(uid + "." + role + "." + expRaw))
	return uid + "." + role + "." + expRaw + "." + hex.EncodeToString(mac.Sum(nil))
}

// RequireRole returns a middleware enforcing the given permission tier.
// It authenticates the bearer credential, then lets the guard re-verify the
// elevated role claim against the source-of-truth store. Responses are a
// generic 401/403 with no role detail.
func RequireRole(verifier *ClaimsVerifier, authz *service.AuthzService, tier string) fiber.Handler {
	return func(c fiber.Ctx) error {
		auth := c.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		}

		claims, err := verifier.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		}

		if err := authz.Require(c.Context(), claims, tier, HashIP(c.IP())); err != nil {
			if err == model.ErrUnauthenticated {
				return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
			}
			if err == model.ErrForbidden {
				return ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", "Not allowed")
			}
			return ErrorResponse(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "Try again later")
		}

		c.Locals("uid", claims.UID)
		return c.Next()
	}
}
