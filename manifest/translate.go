// Package manifest parses stream manifests and resolves them into a playable selection.
package manifest

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/porthole-app/porthole/constant"
	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/internal/luavm"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/network"
	"github.com/porthole-app/porthole/util"
	"github.com/porthole-app/porthole/where"
	lua "github.com/yuin/gopher-lua"
)

// Translators lists installed translator script names in sorted order.
//
// A translator is a user-supplied Lua module turning a provider's
// response bytes into canonical manifest JSON. Scripts live under the
// translators config directory, one <name>.lua per provider.
func Translators() []string {
	entries, err := filesystem.API().ReadDir(where.Translators())
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		names = append(names, util.FileStem(entry.Name()))
	}

	sort.Strings(names)
	return names
}

// FindTranslator returns the first translator, in name order, whose
// Matches predicate accepts the URL.
func FindTranslator(rawURL string) (string, bool) {
	for _, name := range Translators() {
		state, err := loadTranslator(name)
		if err != nil {
			log.Warnf("translator %s failed to load: %s", name, err)
			continue
		}

		matches := matchesURL(state, rawURL)
		state.Close()

		if matches {
			return name, true
		}
	}
	return "", false
}

// TranslateDocument runs a named translator over provider bytes and
// returns the canonical manifest JSON it produced.
func TranslateDocument(name string, raw []byte) ([]byte, error) {
	state, err := loadTranslator(name)
	if err != nil {
		return nil, err
	}
	defer state.Close()

	fn := state.GetGlobal(constant.TranslateFn)
	if err := state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(raw)); err != nil {
		return nil, fmt.Errorf("translator %s: %w", name, err)
	}

	ret := state.Get(-1)
	state.Pop(1)

	if ret.Type() != lua.LTString {
		return nil, fmt.Errorf("translator %s: %s must return a JSON string", name, constant.TranslateFn)
	}

	return []byte(ret.String()), nil
}

// Vet loads a translator script at an arbitrary path and verifies its
// contract: Translate must be defined, Matches is optional. It reports
// whether a Matches predicate exists and, when rawURL is non-empty,
// whether the predicate accepts the URL.
func Vet(path, rawURL string) (hasMatches, matched bool, err error) {
	state := luavm.NewState()
	registerTLSClient(state)
	defer state.Close()

	if err := luavm.PreCompileAndLoad(state, path); err != nil {
		return false, false, err
	}

	if state.GetGlobal(constant.TranslateFn).Type() != lua.LTFunction {
		return false, false, fmt.Errorf("function %s is required but not defined in %s", constant.TranslateFn, util.FileStem(path))
	}

	if state.GetGlobal(constant.MatchesFn).Type() != lua.LTFunction {
		return false, false, nil
	}

	if rawURL == "" {
		return true, false, nil
	}

	return true, matchesURL(state, rawURL), nil
}

// loadTranslator compiles and executes the named script and validates its contract.
func loadTranslator(name string) (*lua.LState, error) {
	path := filepath.Join(where.Translators(), name+".lua")

	state := luavm.NewState()
	registerTLSClient(state)

	if err := luavm.PreCompileAndLoad(state, path); err != nil {
		state.Close()
		return nil, err
	}

	if state.GetGlobal(constant.TranslateFn).Type() != lua.LTFunction {
		state.Close()
		return nil, fmt.Errorf("function %s is required but not defined in %s", constant.TranslateFn, name)
	}

	return state, nil
}

// matchesURL evaluates the optional Matches predicate. Scripts without
// one never auto-match and must be selected explicitly.
func matchesURL(state *lua.LState, rawURL string) bool {
	fn := state.GetGlobal(constant.MatchesFn)
	if fn.Type() != lua.LTFunction {
		return false
	}

	if err := state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(rawURL)); err != nil {
		return false
	}

	ret := state.Get(-1)
	state.Pop(1)
	return lua.LVAsBool(ret)
}

// registerTLSClient injects the "http_tls" module backed by the
// camouflaged client, letting translators chase nested provider
// references past fingerprinting CDNs.
func registerTLSClient(state *lua.LState) {
	mod := state.NewTable()
	state.SetField(mod, "get", state.NewFunction(luaTLSGet))
	state.SetGlobal("http_tls", mod)
}

// luaTLSGet implements http_tls.get(url [, headers]) → body, status
func luaTLSGet(L *lua.LState) int {
	rawURL := L.CheckString(1)
	headersTable := L.OptTable(2, nil)

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		L.RaiseError("http_tls.get failed: %s", err.Error())
		return 0
	}

	if headersTable != nil {
		headersTable.ForEach(func(k, v lua.LValue) {
			req.Header.Set(k.String(), v.String())
		})
	}

	resp, err := network.Camouflage.Do(req)
	if err != nil {
		L.RaiseError("http_tls.get failed: %s", err.Error())
		return 0
	}
	defer util.Ignore(resp.Body.Close)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		L.RaiseError("http_tls.get failed: %s", err.Error())
		return 0
	}

	L.Push(lua.LString(body))
	L.Push(lua.LNumber(resp.StatusCode))
	return 2
}
