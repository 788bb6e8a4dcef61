package filestore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/logger"
)

// LocalFilesystem serves file companions from a local folder. URLs are
// signed with an RSA key so the file route needs no session handling of
// its own.
type LocalFilesystem struct {
	router     *mux.Router
	baseFolder string
	publicURL  url.URL
	privateKey *rsa.PrivateKey
}

// NewLocalFilesystem returns a new LocalFilesystem and registers its
// file route on the router. If privateKey is nil a random key is
// generated; that only works in a single instance deployment.
func NewLocalFilesystem(router *mux.Router, baseFolder string, publicURL url.URL, privateKey *rsa.PrivateKey) (*LocalFilesystem, error) {
	if privateKey == nil {
		logger.Default().Warn("no private key provided to sign file URLs, generating a random one")
		logger.Default().Warn("this only works in a single instance deployment")

		var err error
		privateKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
	}
	f := &LocalFilesystem{router: router, baseFolder: baseFolder, publicURL: publicURL, privateKey: privateKey}
	f.configure()
	return f, nil
}

func (f *LocalFilesystem) configure() {
	logger.Default().Debugln("filesystem file store enabled")
	logger.Default().Debugln("  handle file route: /classbase/filesystem GET,PUT,POST")

	f.router.Handle("/classbase/filesystem", http.HandlerFunc(f.handler)).
		Methods(http.MethodOptions, http.MethodGet, http.MethodPut, http.MethodPost)
}

func (f *LocalFilesystem) handler(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	u := r.URL
	if u.Scheme == "" && u.Host == "" {
		u.Scheme = f.publicURL.Scheme
		u.Host = f.publicURL.Host
	}

	if !f.isValid(u.String()) {
		logger.Default().Errorf("invalid signature for %s", u.String())
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	key := v.Get("key")
	method := v.Get("method")

	if r.Method != method && !(r.Method == http.MethodPost && method == http.MethodPut) {
		logger.Default().Errorf("signature valid for %s, but used for %s in %s", method, r.Method, r.URL.String())
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if strings.Contains(key, "..") {
		http.Error(w, ".. not authorized in keys", http.StatusBadRequest)
		return
	}
	filePath := filepath.Join(f.baseFolder, key, "file")

	logger.Default().Infof("filesystem: [%s] key '%s'", r.Method, key)
	switch r.Method {
	case http.MethodGet:
		http.ServeFile(w, r, filePath)

	case http.MethodPost, http.MethodPut:
		if err := os.MkdirAll(path.Join(f.baseFolder, key), 0700); err != nil {
			logger.Default().WithError(err).Errorf("cannot create folder for key '%s'", key)
			http.Error(w, "cannot store file", http.StatusInternalServerError)
			return
		}
		dstFile, err := os.Create(filePath)
		if err != nil {
			logger.Default().WithError(err).Errorf("cannot create file for key '%s'", key)
			http.Error(w, "cannot store file", http.StatusInternalServerError)
			return
		}
		defer dstFile.Close()
		if _, err = io.Copy(dstFile, r.Body); err != nil {
			logger.Default().WithError(err).Errorf("cannot write file for key '%s'", key)
			http.Error(w, "cannot store file", http.StatusInternalServerError)
			return
		}

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Delete deletes the file for a key.
func (f *LocalFilesystem) Delete(key string) error {
	return os.RemoveAll(filepath.Join(f.baseFolder, key))
}

// DeleteAllWithPrefix deletes all files whose keys start with prefix.
func (f *LocalFilesystem) DeleteAllWithPrefix(prefix string) error {
	return os.RemoveAll(filepath.Join(f.baseFolder, prefix))
}

// GetPreSignedURL returns a signed URL that can be used with the given
// method until expireIn has passed.
func (f *LocalFilesystem) GetPreSignedURL(method Method, key string, expireIn time.Duration) (URL string, err error) {
	if strings.Contains(key, "..") {
		return "", core.ValidationError("'..' is not allowed in a key")
	}
	v := url.Values{}
	v.Set("key", key)
	v.Set("expiry", time.Now().Add(expireIn).Format(time.RFC3339))
	v.Set("method", string(method))
	u := url.URL{
		Scheme:   f.publicURL.Scheme,
		Host:     f.publicURL.Host,
		Path:     f.publicURL.Path + "/classbase/filesystem",
		RawQuery: v.Encode(),
	}

	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	hashed := sha256.Sum256(data)

	signature, err := rsa.SignPKCS1v15(rand.Reader, f.privateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return "", err
	}

	v.Set("signature", string(signature))
	u.RawQuery = v.Encode()
	return u.String(), nil
}

func (f *LocalFilesystem) isValid(URL string) bool {
	u, err := url.Parse(URL)
	if err != nil {
		return false
	}
	v := u.Query()
	key := v.Get("key")
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	timeStr := v.Get("expiry")
	if timeStr == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil || t.Before(time.Now()) {
		return false
	}

	signature := v.Get("signature")
	v.Del("signature")
	u.RawQuery = v.Encode()

	data, err := json.Marshal(u)
	if err != nil {
		return false
	}
	hashed := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(&f.privateKey.PublicKey, crypto.SHA256, hashed[:], []byte(signature)) == nil
}
