// Package ipa reads application metadata out of signed iOS archives. An
// archive is a zip container whose Payload directory holds a single
// <Name>.app bundle; the bundle's Info.plist carries the identifier, display
// name and version strings.
package ipa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"howett.net/plist"

	"github.com/dharsanguruparan/OTADrop/internal/model"
)

var (
	ErrNotZip            = errors.New("not a valid zip container")
	ErrMetadataNotFound  = errors.New("metadata file not found")
	ErrMalformedMetadata = errors.New("malformed metadata")
	// ErrRequiredMetadata aliases the model error so callers only need to
	// import this package to classify extraction failures.
	ErrRequiredMetadata = model.ErrRequiredMetadata
)

const (
	infoPlistSuffix = ".app/Info.plist"
	// maxInfoPlistBytes bounds the decompressed size of the metadata entry.
	maxInfoPlistBytes = 8 << 20

	keyBundleIdentifier = "CFBundleIdentifier"
	keyDisplayName      = "CFBundleDisplayName"
	keyName             = "CFBundleName"
	keyShortVersion     = "CFBundleShortVersionString"
	keyBundleVersion    = "CFBundleVersion"
)

// Bundle is the result of inspecting an archive: where the metadata file was
// found and what it declared.
type Bundle struct {
	InfoPath string
	Format   string
	Metadata model.AppMetadata
}

// Extract returns the validated metadata of the archive. It never returns a
// partially populated record.
func Extract(archive []byte) (model.AppMetadata, error) {
	b, err := Inspect(archive)
	if err != nil {
		return model.AppMetadata{}, err
	}
	return b.Metadata, nil
}

// ExtractFile reads the archive at path and extracts its metadata.
func ExtractFile(path string) (model.AppMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.AppMetadata{}, fmt.Errorf("read archive: %w", err)
	}
	return Extract(data)
}

// IsInvalidArchive reports whether err describes a problem with the archive
// contents rather than an I/O failure.
func IsInvalidArchive(err error) bool {
	return errors.Is(err, ErrNotZip) ||
		errors.Is(err, ErrMetadataNotFound) ||
		errors.Is(err, ErrMalformedMetadata) ||
		errors.Is(err, ErrRequiredMetadata)
}

// Inspect locates and decodes the bundle metadata file.
//
// The first entry in central directory order ending in .app/Info.plist is
// used. Archives with several bundles (for example an embedded watch app
// listed before the main one) are not rejected.
func Inspect(archive []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	entry := findInfoPlist(zr.File)
	if entry == nil {
		return nil, ErrMetadataNotFound
	}
	raw, err := readEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedMetadata)
	}
	var info map[string]interface{}
	format, err := plist.Unmarshal(raw, &info)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	if format != plist.XMLFormat && format != plist.BinaryFormat {
		return nil, fmt.Errorf("%w: unsupported plist format %s", ErrMalformedMetadata, plist.FormatNames[format])
	}
	meta, err := metadataFrom(info)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		InfoPath: entry.Name,
		Format:   plist.FormatNames[format],
		Metadata: meta,
	}, nil
}

func findInfoPlist(files []*zip.File) *zip.File {
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(f.Name, infoPlistSuffix) {
			return f
		}
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxInfoPlistBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxInfoPlistBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, maxInfoPlistBytes)
	}
	return data, nil
}

func metadataFrom(info map[string]interface{}) (model.AppMetadata, error) {
	bundleID, _ := lookup(info, keyBundleIdentifier)
	appName, _ := lookup(info, keyDisplayName)
	if appName == "" {
		appName, _ = lookup(info, keyName)
	}
	version, ok := lookup(info, keyShortVersion)
	if !ok {
		version = model.DefaultVersion
	}
	build, ok := lookup(info, keyBundleVersion)
	if !ok {
		build = model.DefaultBuildVersion
	}
	return model.NewAppMetadata(bundleID, appName, version, build)
}

// lookup returns the value of key rendered as a string and whether the key
// was present. Numeric values show up in hand-edited plists for the version
// keys and are formatted rather than rejected.
func lookup(info map[string]interface{}, key string) (string, bool) {
	v, ok := info[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", true
	}
}
