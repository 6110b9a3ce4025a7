package session

import (
	"testing"
	"time"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
)

func testConfig() *core.Config {
	conf := new(core.Config)
	conf.AppName = "XCCM"
	conf.SecretKey = "sekrit"
	conf.Session.TokenExpirationDelta = time.Hour
	return conf
}

func TestGenerateDecodeToken(t *testing.T) {
	conf := testConfig()
	rec := Record{ID: "u1", Name: "Awe", Email: "awe@test.cd", Role: "student"}

	token, err := GenerateToken(GetClaims(rec, conf), conf)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	for _, verify := range []bool{true, false} {
		claims, err := DecodeToken(token, conf, verify)
		if err != nil {
			t.Fatalf("DecodeToken(verify=%v) failed: %v", verify, err)
		}
		got := claims.Record()
		if !got.SameIdentity(rec) {
			t.Errorf("DecodeToken(verify=%v) record = %+v, want %+v", verify, got, rec)
		}
		if got.Email != rec.Email {
			t.Errorf("DecodeToken(verify=%v) email = %s, want %s", verify, got.Email, rec.Email)
		}
	}
}

func TestDecodeToken_errors(t *testing.T) {
	conf := testConfig()
	rec := Record{ID: "u1", Role: "teacher"}

	validToken, err := GenerateToken(GetClaims(rec, conf), conf)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	badKeyConf := testConfig()
	badKeyConf.SecretKey = "other"
	forgedToken, err := GenerateToken(GetClaims(rec, badKeyConf), badKeyConf)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	expiredToken := validToken // valid signature, past expiry once time moves on

	tests := []struct {
		name    string
		token   string
		verify  bool
		now     func() time.Time
		wantErr error
	}{
		{name: "garbage", token: "lol", verify: true, wantErr: ErrTokenInvalid},
		{name: "garbage unverified", token: "lol", verify: false, wantErr: ErrTokenInvalid},
		{name: "bad signature", token: forgedToken, verify: true, wantErr: ErrTokenInvalid},
		{name: "bad signature accepted unverified", token: forgedToken, verify: false},
		{name: "expired", token: expiredToken, verify: true, now: func() time.Time { return time.Now().Add(2 * time.Hour) }, wantErr: ErrTokenExpired},
		{name: "expired unverified", token: expiredToken, verify: false, now: func() time.Time { return time.Now().Add(2 * time.Hour) }, wantErr: ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nowFunc = time.Now
			if tt.now != nil {
				nowFunc = tt.now
			}
			defer func() { nowFunc = time.Now }()

			if _, err := DecodeToken(tt.token, conf, tt.verify); err != tt.wantErr {
				t.Errorf("DecodeToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetClaims(t *testing.T) {
	conf := testConfig()
	rec := Record{ID: "u1", Role: "professor"}

	claims := GetClaims(rec, conf)
	if claims.Subject != rec.ID {
		t.Errorf("subject = %s, want %s", claims.Subject, rec.ID)
	}
	if claims.Role != "teacher" {
		t.Errorf("role = %s, want teacher (normalized)", claims.Role)
	}
	if claims.Issuer != conf.AppName {
		t.Errorf("issuer = %s, want %s", claims.Issuer, conf.AppName)
	}
	if got := claims.ExpiresAt - claims.IssuedAt; got != int64(time.Hour.Seconds()) {
		t.Errorf("expiry delta = %ds, want %v", got, time.Hour)
	}
}
