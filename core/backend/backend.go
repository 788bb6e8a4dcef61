/*Package backend implements the generic record backend.

The backend realizes a Parse style object store: a configurable set of
record classes, each stored in postgres with a schemaless jsonb
payload, and a REST surface for creating, querying, updating and
deleting records. The built-in user class carries credentials and the
session routes for login, logout and the current user.
*/
package backend

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/access"
	"github.com/classbase/classbase/core/csql"
	"github.com/classbase/classbase/core/filestore"
	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/query"
	"github.com/classbase/classbase/core/schema"
	"github.com/classbase/classbase/core/session"
	"github.com/classbase/classbase/core/state"
	"github.com/classbase/classbase/core/store"
)

// default validity of pre-signed companion file URLs
const defaultFileURLValidity = 15 * time.Minute

// Backend is the generic record backend
type Backend struct {
	config       Configuration
	classConfigs map[string]classConfiguration
	db           *csql.DB
	router       *mux.Router
	notifier     core.Notifier
	fileStore    filestore.Driver
	validator    *schema.Validator
	assembler    query.Assembler

	// Registry holds the class accessors of this backend.
	Registry *model.Registry
	// Sessions is the session manager of this backend.
	Sessions *session.Manager
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all record classes. This is mandatory.
	Config string
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// MasterKey unlocks the master privilege via the master key header.
	// Optional; without it no request can hold the master privilege.
	MasterKey string
	// SessionStore persists sessions. Optional, defaults to a postgres
	// store in the backend's schema.
	SessionStore session.Store
	// SessionTTL is the time until an issued session expires. Optional,
	// defaults to 30 days.
	SessionTTL time.Duration
	// Notifier receives record lifecycle events for classes which
	// request notifications. This is optional.
	Notifier core.Notifier
	// JSONSchemas contains JSON schemas for payload validation,
	// referenced by classes via schema_id. This is optional.
	JSONSchemas []string
	// JSONSchemasRefs contains additional schemas which can be
	// referenced by the schemas in JSONSchemas, but do not validate
	// anything on their own. This is optional.
	JSONSchemasRefs []string
	// FileStore keeps companion files of classes with file support.
	// Mandatory if and only if the configuration contains such a class.
	FileStore filestore.Driver
	// JwtPublicKeys maps key ids to PEM encoded RSA public keys for
	// federated bearer token login. This is optional.
	JwtPublicKeys map[string]string
	// JwtIssuer is the accepted issuer for bearer tokens. Mandatory when
	// JwtPublicKeys is set.
	JwtIssuer string
}

// New realizes the actual backend. It creates the sql tables (if they
// do not exist) and adds the actual routes to the router
func New(bb *Builder) *Backend {

	var config Configuration
	err := json.Unmarshal([]byte(bb.Config), &config)
	if err != nil {
		panic(fmt.Errorf("parse error in backend configuration: %s", err))
	}

	if bb.DB == nil {
		panic("DB is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}

	validator, err := schema.NewValidator(bb.JSONSchemas, bb.JSONSchemasRefs)
	if err != nil {
		panic(fmt.Errorf("invalid JSON schema: %s", err))
	}

	b := &Backend{
		config:       config,
		classConfigs: make(map[string]classConfiguration),
		db:           bb.DB,
		router:       bb.Router,
		notifier:     bb.Notifier,
		fileStore:    bb.FileStore,
		validator:    validator,
		Registry:     model.NewRegistry(),
	}

	b.realizeClasses()
	b.persistConfiguration()

	users, ok := b.Registry.Get(model.UserClass)
	if !ok {
		panic("user class is missing")
	}

	sessionStore := bb.SessionStore
	if sessionStore == nil {
		sessionStore = store.NewSessionStore(bb.DB)
	}
	policy := session.RevocationPolicy(nil)
	if bb.SessionTTL > 0 {
		policy = session.ExpireAfter(bb.SessionTTL)
	}
	b.Sessions = session.NewManager(&session.ManagerBuilder{
		Users:  users,
		Store:  sessionStore,
		Policy: policy,
	})

	b.assembler = query.Assembler{Resolve: b.Registry.Resolver()}

	b.handleCORS()
	b.handleCompression()
	logger.AddRequestID(b.router)
	b.handleMetrics()
	b.router.Use(access.NewMetadataMiddleware(&access.MetadataMiddlewareBuilder{
		MasterKey: bb.MasterKey,
		Sessions:  b.Sessions,
	}))
	if len(bb.JwtPublicKeys) > 0 {
		b.router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
			PublicKeys: bb.JwtPublicKeys,
			Issuer:     bb.JwtIssuer,
			Users:      users,
		}))
	}

	b.handleRoutes(b.router)
	return b
}

// realizeClasses builds a class accessor per configured class. The user
// class always exists; a configured user class only adds fields to the
// built-in definition.
func (b *Backend) realizeClasses() {
	haveUser := false
	for _, rc := range b.config.Classes {
		definition := model.Definition{
			Name:        rc.Class,
			Fields:      rc.Fields,
			SchemaID:    rc.SchemaID,
			WithFiles:   rc.WithFiles,
			Description: rc.Description,
		}
		if rc.Class == model.UserClass {
			haveUser = true
			definition = mergeUserDefinition(definition)
		}
		if rc.WithFiles && b.fileStore == nil {
			panic(fmt.Errorf("class %s has file support, but there is no file store", rc.Class))
		}
		if rc.SchemaID != "" && !b.validator.HasSchema(rc.SchemaID) {
			panic(fmt.Errorf("class %s references unknown schema %s", rc.Class, rc.SchemaID))
		}
		b.classConfigs[rc.Class] = rc
		b.Registry.Add(store.NewClass(b.db, definition))
	}
	if !haveUser {
		b.classConfigs[model.UserClass] = classConfiguration{Class: model.UserClass}
		b.Registry.Add(store.NewClass(b.db, model.UserDefinition()))
	}
}

// persistConfiguration records the served configuration in the state
// store, so a deployment can be inspected and configuration changes
// show up in the log.
func (b *Backend) persistConfiguration() {
	deployed := state.New(b.db).Accessor("_backend_")
	var previous Configuration
	when, err := deployed.Read("configuration", &previous)
	if err != nil {
		logger.Default().WithError(err).Errorln("cannot read deployed configuration")
	} else if !when.IsZero() {
		current, _ := json.Marshal(b.config)
		before, _ := json.Marshal(previous)
		if string(current) != string(before) {
			logger.Default().Infoln("configuration changed, previous deployment was from", when)
		}
	}
	if err := deployed.Write("configuration", b.config); err != nil {
		logger.Default().WithError(err).Errorln("cannot persist configuration")
	}
}

// mergeUserDefinition adds the built-in credential fields to a
// configured user class.
func mergeUserDefinition(d model.Definition) model.Definition {
	builtin := model.UserDefinition()
	have := map[string]bool{}
	for _, field := range d.Fields {
		have[field] = true
	}
	for _, field := range builtin.Fields {
		if !have[field] {
			d.Fields = append(d.Fields, field)
		}
	}
	return d
}

// handleRoutes adds all necessary handlers for the specified configuration
func (b *Backend) handleRoutes(router *mux.Router) {
	logger.Default().Debugln("backend: handle routes")
	b.handleClassRoutes(router)
	b.handleUserRoutes(router)
	b.handleVersion(router)
	b.handleStatistics(router)
}

// fileURLValidity returns the pre-signed URL validity for a class.
func (b *Backend) fileURLValidity(rc classConfiguration) time.Duration {
	if rc.FilePresignedURLValidity > 0 {
		return time.Duration(rc.FilePresignedURLValidity) * time.Second
	}
	return defaultFileURLValidity
}

// notify emits a record event if the class configuration requests it
// and a notifier is installed.
func (b *Backend) notify(rc classConfiguration, operation core.Operation, payload interface{}) {
	if b.notifier == nil || !rc.notifies(operation) {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Default().WithError(err).Errorf("cannot serialize %s event for class %s", operation, rc.Class)
		return
	}
	b.notifier.Notify(rc.Class, operation, data)
}
