package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/crediscout/internal/adapters/identity"
	"github.com/okian/crediscout/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

var _ session.Identity = (*identity.User)(nil)

type toolkit struct {
	mu        sync.Mutex
	refreshes atomic.Int32
	names     []string
	expiresIn string
}

func (tk *toolkit) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "api-key" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API_KEY_INVALID"}}`))
			return
		}
		switch r.URL.Path {
		case "/v1/accounts:signInWithPassword":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "correct-horse" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
				return
			}
			writeJSON(w, map[string]string{
				"idToken": "id-1", "refreshToken": "refresh-1", "expiresIn": tk.expiresIn,
				"localId": "uid-0123456789", "email": "ada@example.com",
			})
		case "/v1/accounts:signUp":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] == "taken@example.com" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"EMAIL_EXISTS"}}`))
				return
			}
			writeJSON(w, map[string]string{
				"idToken": "id-new", "refreshToken": "refresh-new", "expiresIn": "3600",
				"localId": "uid-new", "email": body["email"].(string),
			})
		case "/v1/accounts:update":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			tk.mu.Lock()
			tk.names = append(tk.names, body["displayName"].(string))
			tk.mu.Unlock()
			writeJSON(w, map[string]string{"localId": "uid-new", "displayName": body["displayName"].(string)})
		case "/v1/accounts:lookup":
			writeJSON(w, map[string]any{"users": []map[string]string{{"localId": "uid", "createdAt": "1700000000000"}}})
		case "/token":
			_ = r.ParseForm()
			if r.PostForm.Get("grant_type") != "refresh_token" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if r.PostForm.Get("refresh_token") == "revoked" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"TOKEN_EXPIRED"}}`))
				return
			}
			n := tk.refreshes.Add(1)
			writeJSON(w, map[string]string{
				"id_token": "id-refreshed-" + string(rune('0'+n)), "refresh_token": "refresh-2", "expires_in": "3600",
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(srv *httptest.Server, now func() time.Time) *identity.Client {
	return identity.NewClient(srv.URL+"/v1", srv.URL+"/token", "api-key", identity.WithClock(now))
}

func TestSignIn(t *testing.T) {
	Convey("Given an identity toolkit", t, func() {
		tk := &toolkit{expiresIn: "3600"}
		srv := httptest.NewServer(tk.handler())
		defer srv.Close()
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		client := newClient(srv, func() time.Time { return now })
		ctx := context.Background()

		Convey("When signing in with valid credentials", func() {
			u, err := client.SignIn(ctx, "ada@example.com", "correct-horse")
			So(err, ShouldBeNil)

			Convey("Then the identity carries the profile", func() {
				So(u.UID(), ShouldEqual, "uid-0123456789")
				p := u.Profile()
				So(p.Email, ShouldEqual, "ada@example.com")
				So(p.InstitutionalID(), ShouldEqual, "uid-0123")
				So(p.CreatedAt.Equal(time.UnixMilli(1700000000000)), ShouldBeTrue)
			})

			Convey("Then a fresh token is served without refreshing", func() {
				tok, err := u.Token(ctx)
				So(err, ShouldBeNil)
				So(tok, ShouldEqual, "id-1")
				So(tk.refreshes.Load(), ShouldEqual, int32(0))
			})

			Convey("Then an expiring token is refreshed", func() {
				now = now.Add(59*time.Minute + 30*time.Second)
				tok, err := u.Token(ctx)
				So(err, ShouldBeNil)
				So(tok, ShouldEqual, "id-refreshed-1")

				again, err := u.Token(ctx)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, tok)
				So(tk.refreshes.Load(), ShouldEqual, int32(1))
			})

			Convey("Then signing out blocks further tokens", func() {
				u.SignOut()
				_, err := u.Token(ctx)
				So(errors.Is(err, identity.ErrSignedOut), ShouldBeTrue)
			})
		})

		Convey("When the password is wrong", func() {
			_, err := client.SignIn(ctx, "ada@example.com", "nope")

			Convey("Then a friendly auth error is returned", func() {
				var ae *identity.AuthError
				So(errors.As(err, &ae), ShouldBeTrue)
				So(ae.Code, ShouldEqual, "INVALID_LOGIN_CREDENTIALS")
				So(ae.Message, ShouldEqual, "Invalid email or password.")
			})
		})

		Convey("When credentials are missing", func() {
			_, err := client.SignIn(ctx, "", "")
			So(errors.Is(err, identity.ErrMissingCredentials), ShouldBeTrue)
		})

		Convey("When no api key is configured", func() {
			bare := identity.NewClient(srv.URL+"/v1", srv.URL+"/token", "")
			_, err := bare.SignIn(ctx, "ada@example.com", "correct-horse")
			So(errors.Is(err, identity.ErrMissingAPIKey), ShouldBeTrue)
		})
	})
}

func TestRegister(t *testing.T) {
	Convey("Given an identity toolkit", t, func() {
		tk := &toolkit{expiresIn: "3600"}
		srv := httptest.NewServer(tk.handler())
		defer srv.Close()
		client := newClient(srv, time.Now)
		ctx := context.Background()

		Convey("When registering with a display name", func() {
			u, err := client.Register(ctx, "grace@example.com", "secret1", "  Grace  ")

			Convey("Then the name is recorded on the profile", func() {
				So(err, ShouldBeNil)
				So(u.Profile().DisplayName, ShouldEqual, "Grace")
				So(tk.names, ShouldResemble, []string{"Grace"})
			})
		})

		Convey("When registering without a display name", func() {
			_, err := client.Register(ctx, "grace@example.com", "secret1", "")

			Convey("Then no profile update is sent", func() {
				So(err, ShouldBeNil)
				So(tk.names, ShouldBeEmpty)
			})
		})

		Convey("When the email is taken", func() {
			_, err := client.Register(ctx, "taken@example.com", "secret1", "")
			var ae *identity.AuthError
			So(errors.As(err, &ae), ShouldBeTrue)
			So(ae.Message, ShouldEqual, "An account with this email already exists.")
		})
	})
}
