package access

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/session"
)

func authenticatedMetadata(t *testing.T) *Metadata {
	t.Helper()
	user, err := model.UserDefinition().NewRecord(map[string]interface{}{"username": "ada"})
	if err != nil {
		t.Fatal(err)
	}
	user.Bind(uuid.New(), time.Now(), time.Now())
	return &Metadata{
		Identity: user,
		Session:  &session.Session{ID: uuid.New(), Token: "token"},
	}
}

func TestAuthorize_MasterBypassesEverything(t *testing.T) {
	master := &Metadata{Master: true}
	target := core.Pointer{ClassName: model.UserClass, ID: uuid.New()}
	for _, op := range []core.Operation{
		core.OperationList, core.OperationRead, core.OperationCreate,
		core.OperationUpdate, core.OperationDelete,
		core.OperationLogin, core.OperationLogout, core.OperationMe,
	} {
		if err := Authorize(op, master, target); err != nil {
			t.Fatalf("master denied %s: %v", op, err)
		}
	}
}

func TestAuthorize_UserRecordsAreOwnerOnly(t *testing.T) {
	meta := authenticatedMetadata(t)
	own := core.Pointer{ClassName: model.UserClass, ID: meta.Identity.ID()}
	other := core.Pointer{ClassName: model.UserClass, ID: uuid.New()}

	for _, op := range []core.Operation{core.OperationUpdate, core.OperationDelete} {
		if err := Authorize(op, meta, own); err != nil {
			t.Fatalf("owner denied %s on own record: %v", op, err)
		}
		if err := Authorize(op, meta, other); core.KindOf(err) != core.ErrorForbidden {
			t.Fatalf("%s on another user allowed: %v", op, err)
		}
		if err := Authorize(op, &Metadata{}, other); core.KindOf(err) != core.ErrorForbidden {
			t.Fatalf("anonymous %s on a user allowed: %v", op, err)
		}
	}

	// other classes are not owner scoped
	todo := core.Pointer{ClassName: "todo", ID: uuid.New()}
	if err := Authorize(core.OperationDelete, &Metadata{}, todo); err != nil {
		t.Fatalf("delete on a plain class denied: %v", err)
	}
}

func TestAuthorize_NoSignupOrLoginWhileAuthenticated(t *testing.T) {
	meta := authenticatedMetadata(t)
	userClass := core.Pointer{ClassName: model.UserClass}

	if err := Authorize(core.OperationLogin, meta, core.Pointer{}); core.KindOf(err) != core.ErrorForbidden {
		t.Fatalf("login while authenticated allowed: %v", err)
	}
	if err := Authorize(core.OperationCreate, meta, userClass); core.KindOf(err) != core.ErrorForbidden {
		t.Fatalf("signup while authenticated allowed: %v", err)
	}

	if err := Authorize(core.OperationLogin, &Metadata{}, core.Pointer{}); err != nil {
		t.Fatalf("anonymous login denied: %v", err)
	}
	if err := Authorize(core.OperationCreate, &Metadata{}, userClass); err != nil {
		t.Fatalf("anonymous signup denied: %v", err)
	}
	// creating records of other classes is fine while authenticated
	if err := Authorize(core.OperationCreate, meta, core.Pointer{ClassName: "todo"}); err != nil {
		t.Fatalf("create on a plain class denied: %v", err)
	}
}

func TestAuthorize_MeRequiresSession(t *testing.T) {
	if err := Authorize(core.OperationMe, authenticatedMetadata(t), core.Pointer{}); err != nil {
		t.Fatal(err)
	}
	for _, meta := range []*Metadata{nil, {}} {
		if err := Authorize(core.OperationMe, meta, core.Pointer{}); core.KindOf(err) != core.ErrorInvalidSessionToken {
			t.Fatalf("me without session allowed: %v", err)
		}
	}
}
