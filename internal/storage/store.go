// Package storage persists uploaded archives and generated manifests. Every
// artifact lives in one of two namespaces and is addressed by a flat name
// such as "<uuid>.ipa".
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is exported so callers elsewhere can compare errors using
	// errors.Is.
	ErrNotFound = errors.New("artifact not found")
	// ErrExists is returned when a write-once artifact is saved twice.
	ErrExists = errors.New("artifact already exists")
	// ErrInvalidName rejects names that could escape the namespace.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Namespace separates archives from manifests.
type Namespace string

const (
	Archives  Namespace = "archives"
	Manifests Namespace = "manifests"
)

// Namespaces lists every namespace a backend must provision.
var Namespaces = []Namespace{Archives, Manifests}

// Store is the durable byte storage used by the upload pipeline.
type Store interface {
	Save(ctx context.Context, ns Namespace, name string, data []byte) error
	Read(ctx context.Context, ns Namespace, name string) ([]byte, error)
	Delete(ctx context.Context, ns Namespace, name string) error
}

// ValidName reports an error unless name is a single path element.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validNamespace(ns Namespace) error {
	for _, known := range Namespaces {
		if ns == known {
			return nil
		}
	}
	return fmt.Errorf("unknown namespace %q", ns)
}

// Validate checks both the namespace and the artifact name.
func Validate(ns Namespace, name string) error {
	if err := validNamespace(ns); err != nil {
		return err
	}
	return ValidName(name)
}
