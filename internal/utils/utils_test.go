package utils

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, "BUSINESS", 15)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(tok.Exp) > 15*time.Minute || time.Until(tok.Exp) < 14*time.Minute {
		t.Fatalf("unexpected expiry %v", tok.Exp)
	}
	id, role, err := ParseAccessToken("s3cret", tok.Token)
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 || role != "BUSINESS" {
		t.Fatalf("got id=%d role=%q", id, role)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, _ := NewAccessToken("s3cret", 1, "ADMIN", 5)
	expired, _ := NewAccessToken("s3cret", 1, "ADMIN", -5)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("s3cret"))

	cases := map[string]struct{ secret, raw string }{
		"wrong secret": {"other", good.Token},
		"expired":      {"s3cret", expired.Token},
		"alg none":     {"s3cret", none},
		"no subject":   {"s3cret", noSubject},
		"garbage":      {"s3cret", "not.a.token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseAccessToken(tc.secret, tc.raw); err != ErrInvalidToken {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRefreshTokenHashing(t *testing.T) {
	a, err := NewRefreshToken(30)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewRefreshToken(30)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Fatalf("raw tokens not random: %q %q", a.Raw, b.Raw)
	}
	h := HashRefreshRaw(a.Raw)
	if len(h) != 64 || h != HashRefreshRaw(a.Raw) || strings.Contains(h, a.Raw) {
		t.Fatalf("bad hash %q", h)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "correct horse") {
		t.Fatal("password should verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("wrong password verified")
	}
}

func TestHaversineKm(t *testing.T) {
	// Lausanne to Geneva is roughly 51 km.
	d := HaversineKm(46.5197, 6.6323, 46.2044, 6.1432)
	if d < 49 || d > 53 {
		t.Fatalf("Lausanne-Geneva = %.1f km", d)
	}
	if HaversineKm(10, 10, 10, 10) != 0 {
		t.Fatal("distance to self should be zero")
	}
}

// destination returns the point reached from (lat, lng) after distKm on
// the given bearing.
func destination(lat, lng, distKm, bearingDeg float64) (float64, float64) {
	rad := math.Pi / 180
	ang := distKm / EarthRadiusKm
	lat1, lng1, brg := lat*rad, lng*rad, bearingDeg*rad
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))
	return lat2 / rad, lng2 / rad
}

func TestBoundingBoxContainsCircle(t *testing.T) {
	for _, c := range []struct{ lat, lng, r float64 }{
		{46.5, 6.6, 20},
		{46.5, 6.6, 300},
		{-33.9, 151.2, 50},
		{69.6, 18.9, 150},
	} {
		minLat, maxLat, minLng, maxLng := BoundingBox(c.lat, c.lng, c.r)
		for b := 0.0; b < 360; b += 5 {
			// Stay a hair inside the circle so float noise cannot push the
			// sample over the edge.
			la, lo := destination(c.lat, c.lng, c.r*0.999999, b)
			if la < minLat || la > maxLat || lo < minLng || lo > maxLng {
				t.Fatalf("centre (%v,%v) r=%v: point (%f,%f) at bearing %v outside box [%f,%f]x[%f,%f]",
					c.lat, c.lng, c.r, la, lo, b, minLat, maxLat, minLng, maxLng)
			}
		}
	}
}

func TestBoundingBoxNearPoleWidens(t *testing.T) {
	_, maxLat, minLng, maxLng := BoundingBox(89.9, 0, 50)
	if maxLat != 90 || minLng != -180 || maxLng != 180 {
		t.Fatalf("got maxLat=%v lng=[%v,%v]", maxLat, minLng, maxLng)
	}
}
