// Package model contains simple struct definitions shared across packages.
package model

import "errors"

// ErrRequiredMetadata is returned when an archive does not carry a bundle
// identifier or a display name.
var ErrRequiredMetadata = errors.New("required metadata not found")

const (
	// DefaultVersion and DefaultBuildVersion fill in the version fields when
	// the bundle does not declare them.
	DefaultVersion      = "1.0"
	DefaultBuildVersion = "1"
)

// AppMetadata identifies an application bundle. Struct tags such as
// `json:"bundle_id"` control the field names used by encoding/json.
type AppMetadata struct {
	BundleID     string `json:"bundle_id"`
	AppName      string `json:"app_name"`
	Version      string `json:"version"`
	BuildVersion string `json:"build_version"`
}

// NewAppMetadata validates the required fields and returns the record.
// Empty version fields are kept as-is; defaults are applied by the caller
// only when the source did not declare them at all.
func NewAppMetadata(bundleID, appName, version, buildVersion string) (AppMetadata, error) {
	if bundleID == "" || appName == "" {
		return AppMetadata{}, ErrRequiredMetadata
	}
	return AppMetadata{
		BundleID:     bundleID,
		AppName:      appName,
		Version:      version,
		BuildVersion: buildVersion,
	}, nil
}

// UploadResult is produced once per upload request. It is never stored; the
// archive and manifest files keyed by ID are the durable artifacts.
type UploadResult struct {
	ID          string      `json:"id"`
	Metadata    AppMetadata `json:"metadata"`
	ArchiveURL  string      `json:"archive_url"`
	ManifestURL string      `json:"manifest_url"`
	InstallURL  string      `json:"itms_url"`
}
