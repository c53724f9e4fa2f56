package ipa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/dharsanguruparan/OTADrop/internal/ipa/ipatest"
	"github.com/dharsanguruparan/OTADrop/internal/model"
)

type entry = ipatest.Entry

func buildArchive(t *testing.T, entries ...entry) []byte {
	return ipatest.Zip(t, entries...)
}

func infoPlist(t *testing.T, format int, v interface{}) []byte {
	return ipatest.Plist(t, format, v)
}

func TestExtractFullMetadata(t *testing.T) {
	archive := buildArchive(t,
		entry{Name: "Payload/Example.app/embedded.mobileprovision", Data: []byte("profile")},
		entry{Name: "Payload/Example.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, map[string]interface{}{
			"CFBundleIdentifier":         "com.example.app",
			"CFBundleDisplayName":        "Example",
			"CFBundleName":               "ExampleInternal",
			"CFBundleShortVersionString": "2.3",
			"CFBundleVersion":            "17",
		})},
	)

	meta, err := Extract(archive)
	require.NoError(t, err)
	assert.Equal(t, model.AppMetadata{
		BundleID:     "com.example.app",
		AppName:      "Example",
		Version:      "2.3",
		BuildVersion: "17",
	}, meta)
}

func TestExtractBinaryPlist(t *testing.T) {
	archive := buildArchive(t, entry{Name: "Payload/Bin.app/Info.plist", Data: infoPlist(t, plist.BinaryFormat, map[string]interface{}{
		"CFBundleIdentifier": "com.example.binary",
		"CFBundleName":       "Binary",
	})})

	b, err := Inspect(archive)
	require.NoError(t, err)
	assert.Equal(t, "Payload/Bin.app/Info.plist", b.InfoPath)
	assert.Equal(t, "Binary", b.Format)
	assert.Equal(t, "com.example.binary", b.Metadata.BundleID)
}

func TestExtractDefaultsVersions(t *testing.T) {
	archive := buildArchive(t, entry{Name: "Payload/App.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, map[string]interface{}{
		"CFBundleIdentifier":  "com.example.defaults",
		"CFBundleDisplayName": "Defaults",
	})})

	meta, err := Extract(archive)
	require.NoError(t, err)
	assert.Equal(t, "1.0", meta.Version)
	assert.Equal(t, "1", meta.BuildVersion)
}

func TestExtractNumericVersion(t *testing.T) {
	archive := buildArchive(t, entry{Name: "Payload/App.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, map[string]interface{}{
		"CFBundleIdentifier": "com.example.numeric",
		"CFBundleName":       "Numeric",
		"CFBundleVersion":    uint64(42),
	})})

	meta, err := Extract(archive)
	require.NoError(t, err)
	assert.Equal(t, "42", meta.BuildVersion)
}

func TestExtractNameFallback(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
		want   string
	}{
		{
			name:   "display name absent",
			fields: map[string]interface{}{"CFBundleIdentifier": "com.example.a", "CFBundleName": "Short"},
			want:   "Short",
		},
		{
			name:   "display name empty",
			fields: map[string]interface{}{"CFBundleIdentifier": "com.example.b", "CFBundleDisplayName": "", "CFBundleName": "Short"},
			want:   "Short",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := buildArchive(t, entry{Name: "Payload/App.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, tt.fields)})
			meta, err := Extract(archive)
			require.NoError(t, err)
			assert.Equal(t, tt.want, meta.AppName)
		})
	}
}

func TestExtractMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{"no names", map[string]interface{}{"CFBundleIdentifier": "com.example.app"}},
		{"no identifier", map[string]interface{}{"CFBundleDisplayName": "Example"}},
		{"empty identifier", map[string]interface{}{"CFBundleIdentifier": "", "CFBundleName": "Example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := buildArchive(t, entry{Name: "Payload/App.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, tt.fields)})
			meta, err := Extract(archive)
			require.ErrorIs(t, err, ErrRequiredMetadata)
			assert.True(t, IsInvalidArchive(err))
			assert.Equal(t, model.AppMetadata{}, meta)
		})
	}
}

func TestExtractMetadataNotFound(t *testing.T) {
	valid := infoPlist(t, plist.XMLFormat, map[string]interface{}{
		"CFBundleIdentifier": "com.example.app",
		"CFBundleName":       "Example",
	})
	archive := buildArchive(t,
		entry{Name: "Payload/Info.plist", Data: valid},
		entry{Name: "Payload/Example.app/Resources/Info.plist", Data: valid},
		entry{Name: "Payload/Example.app/Info.plist.bak", Data: valid},
	)

	_, err := Extract(archive)
	require.ErrorIs(t, err, ErrMetadataNotFound)
	assert.True(t, IsInvalidArchive(err))
}

func TestExtractFirstMatchWins(t *testing.T) {
	archive := buildArchive(t,
		entry{Name: "Payload/First.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, map[string]interface{}{
			"CFBundleIdentifier": "com.example.first",
			"CFBundleName":       "First",
		})},
		entry{Name: "Payload/Second.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, map[string]interface{}{
			"CFBundleIdentifier": "com.example.second",
			"CFBundleName":       "Second",
		})},
	)

	meta, err := Extract(archive)
	require.NoError(t, err)
	assert.Equal(t, "com.example.first", meta.BundleID)
}

func TestExtractNotZip(t *testing.T) {
	_, err := Extract([]byte("definitely not a zip archive"))
	require.ErrorIs(t, err, ErrNotZip)
	assert.True(t, IsInvalidArchive(err))
}

func TestExtractMalformedPlist(t *testing.T) {
	array := infoPlist(t, plist.XMLFormat, []string{"not", "a", "dictionary"})
	tests := map[string][]byte{
		"corrupt binary": []byte("bplist00\x01\x02garbage"),
		"array root":     array,
		"empty file":     {},
		"openstep text":  []byte(`{ CFBundleIdentifier = com.example.openstep; CFBundleName = OpenStep; }`),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			archive := buildArchive(t, entry{Name: "Payload/App.app/Info.plist", Data: data})
			_, err := Extract(archive)
			require.ErrorIs(t, err, ErrMalformedMetadata)
			assert.True(t, IsInvalidArchive(err))
		})
	}
}

func TestExtractFile(t *testing.T) {
	archive := buildArchive(t, entry{Name: "Payload/App.app/Info.plist", Data: infoPlist(t, plist.XMLFormat, map[string]interface{}{
		"CFBundleIdentifier": "com.example.file",
		"CFBundleName":       "File",
	})})
	path := filepath.Join(t.TempDir(), "app.ipa")
	require.NoError(t, os.WriteFile(path, archive, 0o600))

	meta, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, "com.example.file", meta.BundleID)

	_, err = ExtractFile(filepath.Join(t.TempDir(), "missing.ipa"))
	require.Error(t, err)
	assert.False(t, IsInvalidArchive(err))
}
