package backend

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/access"
	"github.com/classbase/classbase/core/filestore"
	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/query"
	"github.com/classbase/classbase/core/session"
)

// handleClassRoutes adds the generic record routes. The class is a
// route variable; unknown classes yield 404 at request time, so the
// routes do not have to be rebuilt when configurations only differ in
// their class lists.
func (b *Backend) handleClassRoutes(router *mux.Router) {
	logger.Default().Debugln("  handle class routes: /classes/{class} GET,POST")
	logger.Default().Debugln("  handle class routes: /classes/{class}/{record_id} GET,PUT,DELETE")

	router.HandleFunc("/classes/{class}", b.listRecordsWithAuth).
		Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/classes/{class}", b.createRecordWithAuth).
		Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/classes/{class}/{record_id}", b.readRecordWithAuth).
		Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/classes/{class}/{record_id}", b.updateRecordWithAuth).
		Methods(http.MethodOptions, http.MethodPut)
	router.HandleFunc("/classes/{class}/{record_id}", b.deleteRecordWithAuth).
		Methods(http.MethodOptions, http.MethodDelete)
}

// classFromRequest resolves the class route variable.
func (b *Backend) classFromRequest(w http.ResponseWriter, r *http.Request) (model.Class, classConfiguration, bool) {
	name := mux.Vars(r)["class"]
	class, ok := b.Registry.Get(name)
	if !ok {
		http.Error(w, "no such class: "+name, http.StatusNotFound)
		return nil, classConfiguration{}, false
	}
	return class, b.classConfigs[name], true
}

func recordIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["record_id"])
	if err != nil {
		http.Error(w, "invalid record id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// queryParamsFromRequest reads the untrusted query parameters from the
// URL. The where parameter is a JSON object; select, include and sort
// are comma separated lists.
func queryParamsFromRequest(r *http.Request) (query.Params, error) {
	var p query.Params
	values := r.URL.Query()

	if raw := values.Get("where"); raw != "" {
		var where map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &where); err != nil {
			return p, core.ValidationError("where is not a JSON object: %s", err.Error())
		}
		p.Where = where
	}
	if raw := values.Get("select"); raw != "" {
		p.Select = strings.Split(raw, ",")
	}
	if raw := values.Get("include"); raw != "" {
		p.Include = strings.Split(raw, ",")
	}
	if raw := values.Get("sort"); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			p.Sort = append(p.Sort, key)
		}
	}
	for _, name := range []string{"skip", "limit"} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		number, err := strconv.Atoi(raw)
		if err != nil {
			return p, core.ValidationError("%s is not a number", name)
		}
		if name == "skip" {
			p.Skip = &number
		} else {
			p.Limit = &number
		}
	}
	return p, nil
}

func (b *Backend) listRecordsWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	class, rc, ok := b.classFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationList, meta, core.Pointer{ClassName: class.Name()}); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := queryParamsFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := b.assembler.Assemble(ctx, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := class.Find(ctx, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payloads := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, b.recordPayload(rc, record))
	}
	if err := model.ResolveIncludes(ctx, b.Registry, payloads, q.Include); err != nil {
		writeError(w, r, err)
		return
	}
	for i := range payloads {
		payloads[i] = model.SelectPayload(payloads[i], q.Select)
	}

	recordOperationsTotal.WithLabelValues(class.Name(), string(core.OperationList)).Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": payloads})
}

func (b *Backend) readRecordWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	class, rc, ok := b.classFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := recordIDFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationRead, meta, class.ToPointer(id)); err != nil {
		writeError(w, r, err)
		return
	}

	record, err := class.GetByID(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if record == nil {
		http.Error(w, "no such record", http.StatusNotFound)
		return
	}

	p, err := queryParamsFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := b.recordPayload(rc, record)
	if rc.WithFiles && b.fileStore != nil {
		URL, err := b.fileStore.GetPreSignedURL(filestore.Get, companionKey(class.Name(), id), b.fileURLValidity(rc))
		if err != nil {
			writeError(w, r, core.DatabaseError(err))
			return
		}
		payload["file_download_url"] = URL
	}
	payloads := []map[string]interface{}{payload}
	if err := model.ResolveIncludes(ctx, b.Registry, payloads, p.Include); err != nil {
		writeError(w, r, err)
		return
	}
	payload = model.SelectPayload(payloads[0], p.Select)

	recordOperationsTotal.WithLabelValues(class.Name(), string(core.OperationRead)).Inc()
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) createRecordWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	class, rc, ok := b.classFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationCreate, meta, core.Pointer{ClassName: class.Name()}); err != nil {
		writeError(w, r, err)
		return
	}

	keys, err := bodyKeys(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applyDefaults(keys, rc.Default)
	if err := b.validateAgainstSchema(keys, rc.SchemaID); err != nil {
		writeError(w, r, err)
		return
	}
	if class.Name() == model.UserClass {
		if err := hashPasswordKey(keys); err != nil {
			writeError(w, r, err)
			return
		}
	}

	record, err := class.Definition().NewRecord(keys)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := class.Save(ctx, record); err != nil {
		writeError(w, r, err)
		return
	}

	payload := b.recordPayload(rc, record)
	if rc.WithFiles && b.fileStore != nil {
		URL, err := b.fileStore.GetPreSignedURL(filestore.Put, companionKey(class.Name(), record.ID()), b.fileURLValidity(rc))
		if err != nil {
			writeError(w, r, core.DatabaseError(err))
			return
		}
		payload["file_upload_url"] = URL
	}

	recordOperationsTotal.WithLabelValues(class.Name(), string(core.OperationCreate)).Inc()
	b.notify(rc, core.OperationCreate, payload)
	writeJSON(w, http.StatusCreated, payload)
}

func (b *Backend) updateRecordWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	class, rc, ok := b.classFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := recordIDFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationUpdate, meta, class.ToPointer(id)); err != nil {
		writeError(w, r, err)
		return
	}

	record, err := class.GetByID(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if record == nil {
		http.Error(w, "no such record", http.StatusNotFound)
		return
	}

	keys, err := bodyKeys(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if class.Name() == model.UserClass {
		if err := hashPasswordKey(keys); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := record.Apply(class.Definition(), keys); err != nil {
		writeError(w, r, err)
		return
	}
	if err := b.validateAgainstSchema(record.Keys(), rc.SchemaID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := class.Save(ctx, record); err != nil {
		writeError(w, r, err)
		return
	}

	payload := b.recordPayload(rc, record)
	if rc.WithFiles && b.fileStore != nil {
		URL, err := b.fileStore.GetPreSignedURL(filestore.Put, companionKey(class.Name(), record.ID()), b.fileURLValidity(rc))
		if err != nil {
			writeError(w, r, core.DatabaseError(err))
			return
		}
		payload["file_upload_url"] = URL
	}

	recordOperationsTotal.WithLabelValues(class.Name(), string(core.OperationUpdate)).Inc()
	b.notify(rc, core.OperationUpdate, payload)
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) deleteRecordWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	class, rc, ok := b.classFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := recordIDFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationDelete, meta, class.ToPointer(id)); err != nil {
		writeError(w, r, err)
		return
	}

	if err := class.Destroy(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	if rc.WithFiles && b.fileStore != nil {
		if err := b.fileStore.DeleteAllWithPrefix(companionKey(class.Name(), id)); err != nil {
			logger.FromContext(ctx).WithError(err).Errorln("cannot delete companion file for", class.Name(), id)
		}
	}

	recordOperationsTotal.WithLabelValues(class.Name(), string(core.OperationDelete)).Inc()
	b.notify(rc, core.OperationDelete, class.ToPointer(id))
	w.WriteHeader(http.StatusNoContent)
}

// bodyKeys decodes the request body into a key bag.
func bodyKeys(r *http.Request) (map[string]interface{}, error) {
	var keys map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
		return nil, core.ValidationError("body is not a JSON object: %s", err.Error())
	}
	return keys, nil
}

// applyDefaults merges the configured defaults into keys the request
// did not set.
func applyDefaults(keys map[string]interface{}, defaults json.RawMessage) {
	if len(defaults) == 0 {
		return
	}
	var defaultKeys map[string]interface{}
	if err := json.Unmarshal(defaults, &defaultKeys); err != nil {
		return
	}
	for key, value := range defaultKeys {
		if _, ok := keys[key]; !ok {
			keys[key] = value
		}
	}
}

func (b *Backend) validateAgainstSchema(keys map[string]interface{}, schemaID string) error {
	if schemaID == "" {
		return nil
	}
	return b.validator.ValidateStruct(keys, schemaID)
}

// hashPasswordKey replaces a plain text password key with its hash. A
// nil password stays nil so updates can remove it.
func hashPasswordKey(keys map[string]interface{}) error {
	value, ok := keys[session.KeyPassword]
	if !ok || value == nil {
		return nil
	}
	plain, ok := value.(string)
	if !ok || plain == "" {
		return core.ValidationError("password must be a non-empty string")
	}
	hash, err := session.HashPassword(plain)
	if err != nil {
		return core.DatabaseError(err)
	}
	keys[session.KeyPassword] = hash
	return nil
}

// recordPayload is the external representation of a record. User
// records never expose their password hash.
func (b *Backend) recordPayload(rc classConfiguration, record *model.Record) map[string]interface{} {
	payload := record.Payload()
	if rc.Class == model.UserClass || record.Class() == model.UserClass {
		delete(payload, session.KeyPassword)
	}
	return payload
}

// companionKey is the file store key of a record's companion file.
func companionKey(class string, id uuid.UUID) string {
	return class + "/" + id.String()
}
