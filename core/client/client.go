/*Package client provides easy access to the REST API.

The client either makes real HTTP requests against a base URL, or
pseudo-REST requests directly through a mux router. The router variant
needs no running server and is the standard tool for tests.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	url            string
	router         *mux.Router
	httpClient     *http.Client
	defaultHeaders map[string]string
	ctx            context.Context
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// backend, through the mux router.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	c.defaultHeaders = headers
	return c
}

// WithMasterKey returns a new client holding the master privilege
func (c Client) WithMasterKey(key string) Client {
	return c.WithHeader(access.HeaderMasterKey, key)
}

// WithToken returns a new client carrying a session token
func (c Client) WithToken(token string) Client {
	return c.WithHeader(access.HeaderSessionToken, token)
}

// WithOrigin returns a new client declaring a request origin
func (c Client) WithOrigin(origin string) Client {
	return c.WithHeader(access.HeaderOrigin, origin)
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the client's request context
func (c Client) Context() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

// Class represents the records of one particular class
type Class struct {
	client     Client
	name       string
	parameters []string
}

// Class returns a new class client
func (c Client) Class(name string) Class {
	return Class{client: c, name: name}
}

// WithParameter returns a new class client with a URL parameter added.
func (r Class) WithParameter(key string, value string) Class {
	parameter := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	return Class{
		client: r.client,
		name:   r.name,
		// we want a true copy to avoid side effects
		parameters: append(append([]string{}, r.parameters...), parameter),
	}
}

// WithWhere returns a new class client constrained by a where object.
func (r Class) WithWhere(where interface{}) Class {
	data, _ := json.Marshal(where)
	return r.WithParameter("where", string(data))
}

// Path returns the created path for the class plus optional query strings
func (r Class) Path() string {
	path := "/classes/" + r.name
	if len(r.parameters) > 0 {
		path += "?" + strings.Join(r.parameters, "&")
	}
	return path
}

// List gets the matching records up until the specified limit.
//
// The operation corresponds to a GET request. Expects http.StatusOK as
// response, otherwise it will flag an error. Returns the actual http
// status code.
func (r Class) List(result interface{}) (int, error) {
	return r.client.RawGet(r.Path(), result)
}

// Create always creates a new record.
//
// The operation corresponds to a POST request. Expects
// http.StatusCreated as response, otherwise it will flag an error.
// Returns the actual http status code.
func (r Class) Create(body interface{}, result interface{}) (int, error) {
	return r.client.RawPost(r.Path(), body, result)
}

// Item represents a single record of a class
type Item struct {
	class      Class
	id         uuid.UUID
	parameters []string
}

// Item gets a record client from a class
func (r Class) Item(id uuid.UUID) Item {
	return Item{class: r, id: id}
}

// WithParameter returns a new item client with a URL parameter added.
func (r Item) WithParameter(key string, value string) Item {
	parameter := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	return Item{
		class: r.class,
		id:    r.id,
		// we want a true copy to avoid side effects
		parameters: append(append([]string{}, r.parameters...), parameter),
	}
}

// Path returns the created path for this item
func (r Item) Path() string {
	path := "/classes/" + r.class.name + "/" + r.id.String()
	if len(r.parameters) > 0 {
		path += "?" + strings.Join(r.parameters, "&")
	}
	return path
}

// Read reads a record.
//
// The operation corresponds to a GET request. Expects http.StatusOK as
// response, otherwise it will flag an error. Returns the actual http
// status code.
func (r Item) Read(result interface{}) (int, error) {
	return r.class.client.RawGet(r.Path(), result)
}

// Update updates selected keys of a record.
//
// The operation corresponds to a PUT request. Expects http.StatusOK as
// response, otherwise it will flag an error. Returns the actual http
// status code.
func (r Item) Update(body interface{}, result interface{}) (int, error) {
	return r.class.client.RawPut(r.Path(), body, result)
}

// Delete deletes a record. Deleting an absent record is not an error.
//
// The operation corresponds to a DELETE request. Expects
// http.StatusNoContent as response, otherwise it will flag an error.
func (r Item) Delete() (int, error) {
	return r.class.client.RawDelete(r.Path())
}

// Login logs a user in with either username or email as identifier.
// On success the result holds the user payload including the
// session_token.
func (c Client) Login(identifier, password string, result interface{}) (int, error) {
	body := map[string]string{"username": identifier, "password": password}
	return c.rawJSON(http.MethodPost, "/login", body, result, http.StatusOK)
}

// Logout destroys the session the client's token refers to.
func (c Client) Logout() (int, error) {
	return c.rawJSON(http.MethodPost, "/logout", map[string]string{}, nil, http.StatusOK)
}

// Me reads the user of the client's session token.
func (c Client) Me(result interface{}) (int, error) {
	return c.RawGet("/users/me", result)
}

// RawGet gets the resource from path. Expects http.StatusOK as
// response, otherwise it will flag an error. Returns the actual http
// status code.
//
// The path can be extended with query strings. result can be
// map[string]interface{} or a raw *[]byte. result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	return c.do(http.MethodGet, path, nil, result, http.StatusOK)
}

// RawPost posts a resource to path. Expects http.StatusCreated as
// response, otherwise it will flag an error. Returns the actual http
// status code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.rawJSON(http.MethodPost, path, body, result, http.StatusCreated)
}

// RawPut puts a resource to path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status
// code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	return c.rawJSON(http.MethodPut, path, body, result, http.StatusOK)
}

// RawDelete deletes the resource at path. Expects
// http.StatusNoContent as response, otherwise it will flag an error.
// Returns the actual http status code.
func (c Client) RawDelete(path string) (int, error) {
	return c.do(http.MethodDelete, path, nil, nil, http.StatusNoContent)
}

func (c Client) rawJSON(method, path string, body, result interface{}, want int) (int, error) {
	data, ok := body.([]byte)
	if !ok && body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, err
		}
	}
	return c.do(method, path, data, result, want)
}

func (c Client) do(method, path string, body []byte, result interface{}, want int) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}

	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != want {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, want, strings.TrimSpace(string(resBody)))
	}
	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}
