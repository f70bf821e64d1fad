// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

// TranslatorTemplate is a Go text/template for scaffolding new Lua translator files.
const TranslatorTemplate = `{{ $divider := repeat "-" (plus (max (len .URL) (len .Name) (len .Author) 3) 12) }}{{ $divider }}
-- @name    {{ .Name }}
-- @url     {{ .URL }}
-- @author  {{ .Author }}
-- @license MIT
{{ $divider }}


---@alias stream { url: string, container: string, quality: string|nil, bitrate: number|nil, has_video: boolean, has_audio: boolean }
---@alias manifest { title: string, duration: number|nil, streams: stream[] }


----- IMPORTS -----
--- END IMPORTS ---



----- VARIABLES -----
--- END VARIABLES ---



----- MAIN -----

--- Reports whether this translator understands the given page URL.
-- @param url string URL of the provider page
-- @return boolean
function {{ .MatchesFn }}(url)
	return url:find("{{ .URL }}", 1, true) ~= nil
end


--- Turns a provider response into canonical manifest JSON.
-- @param raw string Response body of the provider page
-- @return string JSON-encoded manifest
function {{ .TranslateFn }}(raw)
	local manifest = {
		title = "",
		streams = {},
	}

	return json.encode(manifest)
end


--- END MAIN ---




----- HELPERS -----
--- END HELPERS ---

-- ex: ts=4 sw=4 et filetype=lua
`
