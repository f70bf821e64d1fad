// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/metafates/gache"
	"github.com/porthole-app/porthole/constant"
	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/network"
	"github.com/porthole-app/porthole/util"
	"github.com/porthole-app/porthole/where"
)

// metadataTTL bounds how long formula documents are trusted before refetching.
const metadataTTL = 24 * time.Hour

// bottleFile is one published artifact inside a formula's bottle table.
type bottleFile struct {
	Cellar string `json:"cellar"`
	URL    string `json:"url"`
	Sha256 string `json:"sha256"`
}

// Formula mirrors the slice of the registry metadata document the installer consumes.
type Formula struct {
	Name     string `json:"name"`
	Versions struct {
		Stable string `json:"stable"`
	} `json:"versions"`
	Bottle struct {
		Stable struct {
			Files map[string]bottleFile `json:"files"`
		} `json:"stable"`
	} `json:"bottle"`
	Dependencies []string `json:"dependencies"`
}

// Descriptor pins the concrete artifact selected for this platform.
type Descriptor struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Tag          string   `json:"tag"`
	URL          string   `json:"url"`
	Sha256       string   `json:"sha256,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Describe selects the platform bottle out of a formula document.
func Describe(formula *Formula) (*Descriptor, error) {
	tag, file, err := selectBottle(formula)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Name:         formula.Name,
		Version:      formula.Versions.Stable,
		Tag:          tag,
		URL:          file.URL,
		Sha256:       file.Sha256,
		Dependencies: formula.Dependencies,
	}, nil
}

// formulaCache is the on-disk shape of the metadata cache file.
type formulaCache struct {
	Formulae map[string]*Formula `json:"formulae"`
}

// Metadata provides cached access to published formula documents.
type Metadata struct {
	base   string
	client *http.Client
	cache  *gache.Cache[*formulaCache]
}

// NewMetadata constructs a metadata client against the given API base.
func NewMetadata(base string, client *http.Client) *Metadata {
	return &Metadata{
		base:   base,
		client: client,
		cache: gache.New[*formulaCache](&gache.Options{
			Path:       filepath.Join(where.Cache(), "formulae.json"),
			Lifetime:   metadataTTL,
			FileSystem: &filesystem.GacheFs{},
		}),
	}
}

// Resolve fetches a formula document, consulting the on-disk cache first.
func (m *Metadata) Resolve(ctx context.Context, name string) (*Formula, error) {
	if cached := m.cached(name); cached != nil {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/%s.json", m.base, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMetadataUnavailable, err)
	}
	req.Header.Set("User-Agent", constant.UserAgent)

	resp, err := network.DoWithRetry(ctx, m.client, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMetadataUnavailable, err)
	}
	defer util.Ignore(resp.Body.Close)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrMetadataUnavailable, name, resp.StatusCode)
	}

	var formula Formula
	if err := json.NewDecoder(resp.Body).Decode(&formula); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMetadataUnavailable, err)
	}
	if formula.Name == "" {
		formula.Name = name
	}

	m.store(&formula)
	return &formula, nil
}

// Closure resolves the transitive dependency closure of a formula in
// deterministic first-encounter order, root first. Every dependency's
// bottle carries only its own files, so the whole closure must be
// provisioned for the engine to load.
func (m *Metadata) Closure(ctx context.Context, root string) ([]*Formula, error) {
	var pending util.Stack[string]
	pending.Push(root)

	seen := map[string]struct{}{root: {}}
	var closure []*Formula

	for pending.Len() > 0 {
		formula, err := m.Resolve(ctx, pending.Pop())
		if err != nil {
			return nil, err
		}
		closure = append(closure, formula)

		// Reverse push keeps the declared dependency order on a LIFO walk.
		deps := formula.Dependencies
		for i := len(deps) - 1; i >= 0; i-- {
			if _, ok := seen[deps[i]]; ok {
				continue
			}
			seen[deps[i]] = struct{}{}
			pending.Push(deps[i])
		}
	}

	return closure, nil
}

func (m *Metadata) cached(name string) *Formula {
	data, expired, err := m.cache.Get()
	if err != nil || expired || data == nil {
		return nil
	}
	return data.Formulae[name]
}

func (m *Metadata) store(formula *Formula) {
	data, expired, err := m.cache.Get()
	if err != nil || expired || data == nil {
		data = &formulaCache{Formulae: make(map[string]*Formula)}
	}
	if data.Formulae == nil {
		data.Formulae = make(map[string]*Formula)
	}

	data.Formulae[formula.Name] = formula
	_ = m.cache.Set(data)
}
