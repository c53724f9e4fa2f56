// Package manifest builds the property list consumed by the iOS
// over-the-air installer (itms-services). The document has one item with a
// single software-package asset and a fixed four-key metadata block.
package manifest

import (
	"fmt"

	"howett.net/plist"

	"github.com/dharsanguruparan/OTADrop/internal/model"
)

const (
	AssetKindSoftwarePackage = "software-package"
	MetadataKindSoftware     = "software"
)

type Document struct {
	Items []Item `plist:"items"`
}

type Item struct {
	Assets   []Asset  `plist:"assets"`
	Metadata Metadata `plist:"metadata"`
}

type Asset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

// Metadata has no slot for the build number; bundle-version carries the
// short version string.
type Metadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

// New returns the document describing the archive at archiveURL.
func New(meta model.AppMetadata, archiveURL string) *Document {
	return &Document{
		Items: []Item{{
			Assets: []Asset{{
				Kind: AssetKindSoftwarePackage,
				URL:  archiveURL,
			}},
			Metadata: Metadata{
				BundleIdentifier: meta.BundleID,
				BundleVersion:    meta.Version,
				Kind:             MetadataKindSoftware,
				Title:            meta.AppName,
			},
		}},
	}
}

// Generate serializes the manifest for meta as an XML property list. The
// output is byte-identical for identical inputs.
func Generate(meta model.AppMetadata, archiveURL string) ([]byte, error) {
	data, err := plist.MarshalIndent(New(meta, archiveURL), plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// Parse decodes a manifest document in any property list encoding.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &doc, nil
}
