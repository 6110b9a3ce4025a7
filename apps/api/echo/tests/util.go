package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/NguetchuissiBrunel/xccm-gateway/apps/api/echo"
	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
	logsvc "github.com/NguetchuissiBrunel/xccm-gateway/services/logger"
	inmemdb "github.com/NguetchuissiBrunel/xccm-gateway/storage/database/inmem"
	inmemstore "github.com/NguetchuissiBrunel/xccm-gateway/storage/session/inmem"
)

var (
	conf     *core.Config
	usrRepo  user.Repository
	sessions session.Provider
)

func setup(t *testing.T) echoapi.Server {
	conf = new(core.Config)
	conf.TestMode = true
	conf.AppName = "XCCM"
	conf.SecretKey = "sekrit"
	conf.Session.CookieMaxAge = 7 * 24 * time.Hour
	conf.Session.TokenExpirationDelta = time.Hour
	conf.Session.VerifyTokenSignature = true
	conf.Session.PollInterval = 10 * time.Millisecond
	conf.Session.PollAttempts = 3

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	usrRepo = inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)

	// per-client session stores
	sessions = inmemstore.NewProvider()

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up server
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logsvc.NewStdLogger(log.New(io.Discard, "", 0)),
		UserSvc:        usrSvc,
		Sessions:       sessions,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name         string
	method       string
	path         string
	body         []byte
	cookies      []*http.Cookie
	wantCode     int
	wantLocation string
	extra        interface{}
}

func newRequest(method, path string, cookies []*http.Cookie, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

// recordCookie builds the currentUser request cookie as the reconciler
// issues it.
func recordCookie(rec session.Record) *http.Cookie {
	return &http.Cookie{Name: session.CookieCurrentUser, Value: session.EncodeCookieValue(rec.Encode())}
}

func tokenCookie(t *testing.T, rec session.Record) *http.Cookie {
	token, err := session.GenerateToken(session.GetClaims(rec, conf), conf)
	if err != nil {
		t.Fatalf("tokenCookie() failed: %v", err)
	}
	return &http.Cookie{Name: session.CookieAuthToken, Value: token}
}

func clientIDCookie(id string) *http.Cookie {
	return &http.Cookie{Name: session.CookieClientID, Value: id}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// responseCookie returns the last Set-Cookie entry for name, if any.
func responseCookie(rec *httptest.ResponseRecorder, name string) (*http.Cookie, bool) {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found, found != nil
}

func checkDeletedCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) {
	c, ok := responseCookie(rec, name)
	if !ok {
		t.Errorf("no Set-Cookie for %s", name)
		return
	}
	if c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("cookie %s not deleted: value=%q maxAge=%d", name, c.Value, c.MaxAge)
	}
}

func checkCodeAndLocation(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
	}
	if tt.wantLocation != "" {
		if loc := rec.Header().Get("Location"); loc != tt.wantLocation {
			t.Errorf("location = %s, want %s", loc, tt.wantLocation)
		}
	}
}
