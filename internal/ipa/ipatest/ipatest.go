// Package ipatest builds in-memory archives for tests.
package ipatest

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zip"
	"howett.net/plist"
)

// Entry is a single file written into a test archive.
type Entry struct {
	Name string
	Data []byte
}

// Zip writes entries, in order, into a zip container.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// Plist encodes v in the given plist format.
func Plist(t testing.TB, format int, v interface{}) []byte {
	t.Helper()
	data, err := plist.Marshal(v, format)
	if err != nil {
		t.Fatalf("marshal plist: %v", err)
	}
	return data
}

// Archive returns a minimal application archive whose Info.plist holds
// fields.
func Archive(t testing.TB, fields map[string]interface{}) []byte {
	t.Helper()
	return Zip(t,
		Entry{Name: "Payload/Example.app/Example", Data: []byte{0xcf, 0xfa, 0xed, 0xfe}},
		Entry{Name: "Payload/Example.app/Info.plist", Data: Plist(t, plist.XMLFormat, fields)},
	)
}

// ExampleFields are the Info.plist keys of a fully described application.
func ExampleFields() map[string]interface{} {
	return map[string]interface{}{
		"CFBundleIdentifier":         "com.example.app",
		"CFBundleDisplayName":        "Example",
		"CFBundleShortVersionString": "2.3",
		"CFBundleVersion":            "17",
	}
}
