package exchange_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/service/exchange"
)

func testSigningKey(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	gt.NoError(t, err).Required()

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	gt.NoError(t, err).Required()

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), priv
}

func TestNew(t *testing.T) {
	keyPEM, _ := testSigningKey(t)

	t.Run("returns error when token URL is empty", func(t *testing.T) {
		_, err := exchange.New("", "client-1", keyPEM)
		gt.Value(t, err).NotNil()
	})

	t.Run("returns error when client ID is empty", func(t *testing.T) {
		_, err := exchange.New("https://idp.example.com/token", "", keyPEM)
		gt.Value(t, err).NotNil()
	})

	t.Run("returns error when key is not parseable", func(t *testing.T) {
		_, err := exchange.New("https://idp.example.com/token", "client-1", []byte("not a key"))
		gt.Value(t, err).NotNil()
	})

	t.Run("accepts a PEM private key", func(t *testing.T) {
		svc, err := exchange.New("https://idp.example.com/token", "client-1", keyPEM)
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})

	t.Run("accepts a JWK private key", func(t *testing.T) {
		_, priv := testSigningKey(t)
		key, err := jwk.FromRaw(priv)
		gt.NoError(t, err).Required()
		jwkJSON, err := json.Marshal(key)
		gt.NoError(t, err).Required()

		svc, err := exchange.New("https://idp.example.com/token", "client-1", jwkJSON)
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

func TestClient_Exchange(t *testing.T) {
	keyPEM, priv := testSigningKey(t)
	pub, err := jwk.FromRaw(priv.Public())
	gt.NoError(t, err).Required()

	account := &model.Account{Key: "acct-0", RoleRef: "roles/support-reader", Name: "Primary"}

	t.Run("trades a verified assertion for a lease", func(t *testing.T) {
		var tokenURL string
		var mu sync.Mutex
		var jtis []string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			gt.Value(t, r.Method).Equal(http.MethodPost)
			gt.Value(t, r.PostForm.Get("grant_type")).Equal("urn:ietf:params:oauth:grant-type:jwt-bearer")
			gt.Value(t, r.PostForm.Get("scope")).Equal("roles/support-reader")

			tok, err := jwt.Parse([]byte(r.PostForm.Get("assertion")),
				jwt.WithKey(jwa.RS256, pub),
				jwt.WithValidate(true),
				jwt.WithIssuer("client-1"),
				jwt.WithSubject("client-1"),
				jwt.WithAudience(tokenURL),
			)
			if err != nil {
				http.Error(w, "bad assertion: "+err.Error(), http.StatusUnauthorized)
				return
			}

			mu.Lock()
			jtis = append(jtis, tok.JwtID())
			mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)); err != nil {
				t.Error(err)
			}
		}))
		defer srv.Close()
		tokenURL = srv.URL

		base := time.Now().UTC()
		svc, err := exchange.New(srv.URL, "client-1", keyPEM, exchange.WithNow(func() time.Time { return base }))
		gt.NoError(t, err).Required()

		lease, err := svc.Exchange(context.Background(), account)
		gt.NoError(t, err).Required()
		gt.Value(t, lease.AccountKey).Equal("acct-0")
		gt.Value(t, lease.Token).Equal("tok-123")
		gt.Bool(t, lease.Expiry.Equal(base.Add(time.Hour))).True()

		// A second exchange mints a fresh assertion.
		_, err = svc.Exchange(context.Background(), account)
		gt.NoError(t, err).Required()

		mu.Lock()
		defer mu.Unlock()
		gt.Array(t, jtis).Length(2)
		gt.Value(t, jtis[0]).NotEqual("")
		gt.Value(t, jtis[1]).NotEqual(jtis[0])
	})

	t.Run("returns error on endpoint rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		svc, err := exchange.New(srv.URL, "client-1", keyPEM)
		gt.NoError(t, err).Required()

		_, err = svc.Exchange(context.Background(), account)
		gt.Value(t, err).NotNil()
	})

	t.Run("returns error when response has no token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write([]byte(`{"token_type":"Bearer","expires_in":3600}`)); err != nil {
				t.Error(err)
			}
		}))
		defer srv.Close()

		svc, err := exchange.New(srv.URL, "client-1", keyPEM)
		gt.NoError(t, err).Required()

		_, err = svc.Exchange(context.Background(), account)
		gt.Value(t, err).NotNil()
	})

	t.Run("returns error when response has no lifetime", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write([]byte(`{"access_token":"tok-123"}`)); err != nil {
				t.Error(err)
			}
		}))
		defer srv.Close()

		svc, err := exchange.New(srv.URL, "client-1", keyPEM)
		gt.NoError(t, err).Required()

		_, err = svc.Exchange(context.Background(), account)
		gt.Value(t, err).NotNil()
	})
}

func TestIntegration(t *testing.T) {
	tokenURL := os.Getenv("TEST_EXCHANGE_TOKEN_URL")
	clientID := os.Getenv("TEST_EXCHANGE_CLIENT_ID")
	keyFile := os.Getenv("TEST_EXCHANGE_KEY_FILE")
	roleRef := os.Getenv("TEST_EXCHANGE_ROLE_REF")
	if tokenURL == "" || clientID == "" || keyFile == "" || roleRef == "" {
		t.Skip("TEST_EXCHANGE_* is not set")
	}

	keyData, err := os.ReadFile(keyFile)
	gt.NoError(t, err).Required()

	svc, err := exchange.New(tokenURL, clientID, keyData)
	gt.NoError(t, err).Required()

	lease, err := svc.Exchange(context.Background(), &model.Account{
		Key:     "acct-integration",
		RoleRef: roleRef,
		Name:    "Integration",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, lease.Token).NotEqual("")
	gt.Bool(t, lease.Expiry.After(time.Now())).True()
}
