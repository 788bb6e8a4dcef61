package access

import (
	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/model"
)

// Authorize is the pure decision function consulted before any
// operation reaches a class accessor. It has no side effects; a deny
// must short-circuit the operation before anything is written.
//
// The rules, evaluated in order:
//
//  1. the master privilege allows any operation unconditionally
//  2. update/delete of a user record is allowed only for the user itself
//  3. creating a user or logging in is forbidden while authenticated
//  4. me requires a resolved session
func Authorize(op core.Operation, meta *Metadata, target core.Pointer) error {
	if meta != nil && meta.Master {
		return nil
	}

	if (op == core.OperationUpdate || op == core.OperationDelete) &&
		target.ClassName == model.UserClass {
		if !meta.Authenticated() || meta.Identity.ID() != target.ID {
			return core.ForbiddenError("cannot %s another user", op)
		}
		return nil
	}

	if op == core.OperationLogin || (op == core.OperationCreate && target.ClassName == model.UserClass) {
		if meta.Authenticated() {
			return core.ForbiddenError("already authenticated, log out first")
		}
		return nil
	}

	if op == core.OperationMe {
		if meta == nil || meta.Session == nil {
			return core.InvalidSessionTokenError()
		}
		return nil
	}

	return nil
}
