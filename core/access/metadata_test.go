package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/session"
)

func TestMetadataMiddleware(t *testing.T) {
	users := model.NewMemory(model.UserDefinition())
	manager := session.NewManager(&session.ManagerBuilder{
		Users: users,
		Store: session.NewMemoryStore(),
	})

	hash, err := session.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	user, err := model.UserDefinition().NewRecord(map[string]interface{}{
		session.KeyUsername: "ada",
		session.KeyPassword: hash,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := users.Save(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	s, _, err := manager.LogIn(context.Background(), nil, "ada", "secret", "")
	if err != nil {
		t.Fatal(err)
	}

	var captured *Metadata
	router := mux.NewRouter()
	router.Use(NewMetadataMiddleware(&MetadataMiddlewareBuilder{
		MasterKey: "master-key",
		Sessions:  manager,
	}))
	router.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		captured = MetadataFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	resolve := func(headers map[string]string) *Metadata {
		captured = nil
		r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		for key, value := range headers {
			r.Header.Set(key, value)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("request failed with %d", rec.Code)
		}
		if captured == nil {
			t.Fatal("no metadata in request context")
		}
		return captured
	}

	meta := resolve(nil)
	if meta.Master || meta.Authenticated() {
		t.Fatal("anonymous request gained privileges")
	}

	meta = resolve(map[string]string{HeaderMasterKey: "master-key", HeaderOrigin: "web"})
	if !meta.Master {
		t.Fatal("correct master key rejected")
	}
	if meta.Origin != "web" {
		t.Fatal("origin header lost")
	}

	if resolve(map[string]string{HeaderMasterKey: "wrong"}).Master {
		t.Fatal("wrong master key accepted")
	}

	meta = resolve(map[string]string{HeaderSessionToken: s.Token})
	if !meta.Authenticated() || meta.Identity.ID() != user.ID() {
		t.Fatal("valid token did not resolve")
	}
	if meta.Session == nil || meta.Session.Token != s.Token {
		t.Fatal("session missing from metadata")
	}

	// an unknown token yields an anonymous request, not an error
	meta = resolve(map[string]string{HeaderSessionToken: "unknown"})
	if meta.Authenticated() || meta.Session != nil {
		t.Fatal("unknown token resolved")
	}
	if meta.SessionToken != "unknown" {
		t.Fatal("raw token must be kept for logout")
	}
}
