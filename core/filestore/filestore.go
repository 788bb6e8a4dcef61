// Package filestore keeps large file companions outside of the
// database. Records of classes with file support carry a companion
// object each; clients up- and download it directly through pre-signed
// URLs, the API never proxies file content.
//
// There are two drivers: a local filesystem for single-instance
// deployments and AWS S3.
package filestore

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/mux"
)

// Method restricts what a pre-signed URL may be used for.
type Method string

// supported pre-sign methods
const (
	Get Method = "GET"
	Put Method = "PUT"
)

// Driver is the storage interface behind file companions.
type Driver interface {
	// GetPreSignedURL returns a URL that permits the given method on
	// the key until expireIn has passed.
	GetPreSignedURL(method Method, key string, expireIn time.Duration) (URL string, err error)
	Delete(key string) error
	DeleteAllWithPrefix(prefix string) error
}

// DriverType selects a driver implementation.
type DriverType string

// available driver types
const (
	None            DriverType = ""
	DriverTypeLocal DriverType = "Local"
	DriverTypeAWSS3 DriverType = "AWSS3"
)

// Configuration selects and configures a driver.
type Configuration struct {
	DriverType DriverType
	Local      *LocalConfiguration
	S3         *S3Configuration
}

// LocalConfiguration configures the local filesystem driver.
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration configures the AWS S3 driver.
type S3Configuration struct {
	AWSBucketName string
	AWSRegion     string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}

// NewDriver realizes the driver selected by the configuration. The
// router and publicURL are only used by the local filesystem driver,
// which serves its own file route. A configuration with driver type
// None yields a nil driver without error.
func NewDriver(c Configuration, router *mux.Router, publicURL url.URL) (Driver, error) {
	switch c.DriverType {
	case DriverTypeLocal:
		if c.Local == nil {
			return nil, fmt.Errorf("local file store selected, but not configured")
		}
		return NewLocalFilesystem(router, c.Local.BasePath, publicURL, nil)
	case DriverTypeAWSS3:
		if c.S3 == nil {
			return nil, fmt.Errorf("S3 file store selected, but not configured")
		}
		return NewS3(*c.S3)
	case None:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown file store driver %q", c.DriverType)
}
