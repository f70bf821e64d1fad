// Package playback decides how a source gets played: which backend
// handles it, which stream to open and what to fall back to.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/porthole-app/porthole/internal/cache"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/manifest"
	"github.com/porthole-app/porthole/media"
	"github.com/porthole-app/porthole/network"
	"github.com/porthole-app/porthole/util"
)

// maxManifestSize caps a fetched manifest document.
const maxManifestSize = 16 * 1024 * 1024

// Typed gate failures the CLI turns into an install or enable prompt.
var (
	ErrEngineNotInstalled = errors.New("external engine required but not installed")
	ErrEngineDisabled     = errors.New("external engine required but disabled")
)

// Engine is the slice of the installer the coordinator consults.
type Engine interface {
	IsInstalled() bool
	Enabled() bool
}

// FetchFunc retrieves raw manifest bytes behind a remote reference.
type FetchFunc func(ctx context.Context, rawURL string) ([]byte, error)

// Decision is a fully resolved playback plan for one source.
type Decision struct {
	Source    media.Source
	Backend   media.Backend
	Selection *manifest.Selection
	Target    string
}

// Fallbacks lists alternate stream URLs to try when Target fails to
// open, most preferred first. Direct targets have none.
func (d *Decision) Fallbacks() []string {
	if d.Selection == nil {
		return nil
	}

	urls := make([]string, 0, len(d.Selection.Alternates))
	for _, alternate := range d.Selection.Alternates {
		urls = append(urls, alternate.VideoURL)
	}
	return urls
}

// Coordinator wires the classifier, the resolver and the engine gate
// into a single decision point.
type Coordinator struct {
	engine   Engine
	resolver *manifest.Resolver
	fetch    FetchFunc
}

// NewCoordinator builds a coordinator. A nil resolver takes the
// configured one, a nil fetch falls back to the camouflaged client.
func NewCoordinator(engine Engine, resolver *manifest.Resolver, fetch FetchFunc) *Coordinator {
	if resolver == nil {
		resolver = manifest.ConfiguredResolver()
	}
	if fetch == nil {
		fetch = fetchManifest
	}

	return &Coordinator{engine: engine, resolver: resolver, fetch: fetch}
}

// Decide resolves a source into a playable decision. Local files and
// direct stream URLs classify by extension alone; everything else is a
// manifest reference that gets fetched, optionally translated through
// Lua, resolved and cached.
func (c *Coordinator) Decide(ctx context.Context, source media.Source) (*Decision, error) {
	if source.Kind == media.KindLocalFile {
		return c.direct(source, media.BackendFor(source))
	}

	if ext := source.Extension(); media.KnownContainer(ext) {
		return c.direct(source, media.BackendForExtension(ext))
	}

	selection, err := c.selection(ctx, source)
	if err != nil {
		return nil, err
	}

	backend := media.BackendExternal
	if selection.NativeCompatible() {
		backend = media.BackendNative
	}
	if err := c.gate(backend); err != nil {
		return nil, err
	}

	return &Decision{
		Source:    source,
		Backend:   backend,
		Selection: selection,
		Target:    selection.Primary.VideoURL,
	}, nil
}

// direct wraps a target that plays as-is, no manifest involved.
func (c *Coordinator) direct(source media.Source, backend media.Backend) (*Decision, error) {
	if err := c.gate(backend); err != nil {
		return nil, err
	}
	return &Decision{Source: source, Backend: backend, Target: source.Target}, nil
}

// gate rejects external-backend playback the engine cannot serve.
// The config switch outranks the install state.
func (c *Coordinator) gate(backend media.Backend) error {
	if backend != media.BackendExternal {
		return nil
	}
	if !c.engine.Enabled() {
		return ErrEngineDisabled
	}
	if !c.engine.IsInstalled() {
		return ErrEngineNotInstalled
	}
	return nil
}

// selection resolves the manifest behind a remote source, consulting
// the selection cache first.
func (c *Coordinator) selection(ctx context.Context, source media.Source) (*manifest.Selection, error) {
	ttl := time.Duration(viper.GetInt(key.ResolverCacheTTLMinutes)) * time.Minute
	cacheKey := cache.GenerateKey("selection", source.Target)

	var cached manifest.Selection
	if ttl > 0 && cache.Read(cacheKey, &cached, ttl) {
		log.Debugf("selection for %s served from cache", source.Target)
		return &cached, nil
	}

	raw, err := c.fetch(ctx, source.Target)
	if err != nil {
		return nil, err
	}

	doc, err := manifest.ParseDocument(raw)
	if errors.Is(err, manifest.ErrManifest) {
		doc, err = translate(source.Target, raw)
	}
	if err != nil {
		return nil, err
	}

	selection, err := c.resolver.ResolveDocument(doc)
	if err != nil {
		return nil, err
	}

	if ttl > 0 {
		if err := cache.Write(cacheKey, selection); err != nil {
			log.Warnf("caching selection for %s: %s", source.Target, err)
		}
	}

	return selection, nil
}

// translate runs the matching Lua translator over provider bytes and
// parses the canonical document it produces.
func translate(rawURL string, raw []byte) (manifest.Document, error) {
	name, ok := manifest.FindTranslator(rawURL)
	if !ok {
		return manifest.Document{}, fmt.Errorf("%w: no translator matches %s", manifest.ErrManifest, rawURL)
	}

	log.Debugf("translating %s through %s", rawURL, name)
	translated, err := manifest.TranslateDocument(name, raw)
	if err != nil {
		return manifest.Document{}, err
	}

	return manifest.ParseDocument(translated)
}

// fetchManifest pulls manifest bytes with the camouflaged client.
func fetchManifest(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := network.Camouflage.Do(req)
	if err != nil {
		return nil, err
	}
	defer util.Ignore(resp.Body.Close)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
}
