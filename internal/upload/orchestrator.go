// Package upload turns an uploaded archive into a published install
// manifest. It owns validation order, compensating cleanup and URL
// composition; parsing and persistence are delegated.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OTADrop/internal/ipa"
	"github.com/dharsanguruparan/OTADrop/internal/manifest"
	"github.com/dharsanguruparan/OTADrop/internal/model"
	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

const (
	// ArchivePath and ManifestPath are the public URL prefixes the HTTP
	// layer serves each namespace under.
	ArchivePath  = "/static/uploads/"
	ManifestPath = "/static/manifests/"

	manifestExt   = ".plist"
	installScheme = "itms-services://?action=download-manifest&url="
)

// Janitor deletes artifacts outside the request path.
type Janitor interface {
	Discard(ctx context.Context, ns storage.Namespace, name string) error
}

// Options configures an Orchestrator.
type Options struct {
	// AllowedExtensions lists accepted file extensions without the dot.
	AllowedExtensions []string
	// MaxArchiveBytes is the size ceiling; zero disables it.
	MaxArchiveBytes int64
	// EncodeInstallURL percent-encodes the manifest URL inside the
	// itms-services link. Off by default: installers accept the raw URL.
	EncodeInstallURL bool
	// CleanupOnManifestFailure hands the archive to the Janitor when the
	// manifest cannot be generated or stored.
	CleanupOnManifestFailure bool
}

// Upload is a single file received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Orchestrator runs the upload pipeline. It is safe for concurrent use;
// requests only share the storage namespace, partitioned by fresh ids.
type Orchestrator struct {
	store   storage.Store
	opts    Options
	janitor Janitor
	log     *zap.Logger

	newID    func() string
	extract  func([]byte) (model.AppMetadata, error)
	generate func(model.AppMetadata, string) ([]byte, error)
}

// New constructs an Orchestrator. janitor may be nil.
func New(store storage.Store, opts Options, janitor Janitor, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		opts:     opts,
		janitor:  janitor,
		log:      log,
		newID:    uuid.NewString,
		extract:  ipa.Extract,
		generate: manifest.Generate,
	}
}

// Options returns the settings the orchestrator was built with.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Handle validates, stores and publishes one archive. baseURL is the scheme
// and host the artifacts are reachable under.
func (o *Orchestrator) Handle(ctx context.Context, up Upload, baseURL string) (*model.UploadResult, error) {
	ext, err := o.checkFilename(up.Filename)
	if err != nil {
		return nil, fail(BadInput, err)
	}
	if up.Body == nil {
		return nil, fail(BadInput, ErrNoFile)
	}
	data, err := o.readBody(up.Body)
	if err != nil {
		return nil, fail(BadInput, err)
	}

	id := o.newID()
	archiveName := id + "." + ext
	if err := o.store.Save(ctx, storage.Archives, archiveName, data); err != nil {
		return nil, fail(ServerError, fmt.Errorf("save archive: %w", err))
	}
	log := o.log.With(zap.String("id", id))
	log.Info("saved archive", zap.String("name", archiveName), zap.Int("bytes", len(data)))

	meta, err := o.extract(data)
	if err != nil {
		// The client may already be gone; the rejected archive must not be.
		if derr := o.store.Delete(context.WithoutCancel(ctx), storage.Archives, archiveName); derr != nil {
			log.Error("remove rejected archive", zap.Error(derr))
		}
		log.Warn("rejected archive", zap.Error(err))
		if ipa.IsInvalidArchive(err) {
			return nil, fail(InvalidArchive, err)
		}
		return nil, fail(ServerError, err)
	}
	log.Info("extracted metadata",
		zap.String("bundle_id", meta.BundleID),
		zap.String("app_name", meta.AppName),
		zap.String("version", meta.Version),
		zap.String("build_version", meta.BuildVersion))

	base := strings.TrimRight(baseURL, "/")
	archiveURL := base + ArchivePath + archiveName

	manifestName := id + manifestExt
	doc, err := o.generate(meta, archiveURL)
	if err != nil {
		o.compensate(ctx, log, archiveName, "")
		return nil, fail(ServerError, fmt.Errorf("generate manifest: %w", err))
	}
	if err := o.store.Save(ctx, storage.Manifests, manifestName, doc); err != nil {
		o.compensate(ctx, log, archiveName, manifestName)
		return nil, fail(ServerError, fmt.Errorf("save manifest: %w", err))
	}
	manifestURL := base + ManifestPath + manifestName

	result := &model.UploadResult{
		ID:          id,
		Metadata:    meta,
		ArchiveURL:  archiveURL,
		ManifestURL: manifestURL,
		InstallURL:  InstallURL(manifestURL, o.opts.EncodeInstallURL),
	}
	log.Info("published manifest", zap.String("itms_url", result.InstallURL))
	return result, nil
}

// InstallURL builds the itms-services link for a manifest. With encode
// false the manifest URL is embedded verbatim.
func InstallURL(manifestURL string, encode bool) string {
	if encode {
		return installScheme + url.QueryEscape(manifestURL)
	}
	return installScheme + manifestURL
}

func (o *Orchestrator) checkFilename(name string) (string, error) {
	if name == "" {
		return "", ErrNoFilename
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext != "" {
		for _, allowed := range o.opts.AllowedExtensions {
			if ext == strings.ToLower(allowed) {
				return ext, nil
			}
		}
	}
	return "", fmt.Errorf("%w: only %s files are allowed", ErrFileType, o.extensionList())
}

func (o *Orchestrator) extensionList() string {
	names := make([]string, 0, len(o.opts.AllowedExtensions))
	for _, ext := range o.opts.AllowedExtensions {
		names = append(names, "."+ext)
	}
	return strings.Join(names, ", ")
}

// readBody buffers the archive, enforcing the size ceiling before anything
// reaches storage or the zip reader.
func (o *Orchestrator) readBody(r io.Reader) ([]byte, error) {
	limit := o.opts.MaxArchiveBytes
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, o.tooLarge()
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, o.tooLarge()
	}
	return data, nil
}

func (o *Orchestrator) tooLarge() error {
	return fmt.Errorf("%w: maximum size is %s", ErrTooLarge, humanize.IBytes(uint64(o.opts.MaxArchiveBytes)))
}

// compensate hands artifacts of a failed publish to the janitor. Without
// CleanupOnManifestFailure the archive stays in storage.
func (o *Orchestrator) compensate(ctx context.Context, log *zap.Logger, archiveName, manifestName string) {
	if !o.opts.CleanupOnManifestFailure || o.janitor == nil {
		log.Warn("archive left in storage after manifest failure", zap.String("name", archiveName))
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := o.janitor.Discard(ctx, storage.Archives, archiveName); err != nil {
		log.Error("schedule archive cleanup", zap.Error(err))
	}
	if manifestName == "" {
		return
	}
	if err := o.janitor.Discard(ctx, storage.Manifests, manifestName); err != nil {
		log.Error("schedule manifest cleanup", zap.Error(err))
	}
}
