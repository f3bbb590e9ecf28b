package audit

import "github.com/mssola/useragent"

// maxUserAgentLength bounds what an unrecognized client can write into an
// audit row.
const maxUserAgentLength = 256

// normalizeUserAgent reduces a raw User-Agent header to a compact browser and
// platform description. Agents the parser does not recognize are recorded as
// sent, truncated.
func normalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}

	parsed := useragent.New(raw)
	result := raw
	if name, version := parsed.Browser(); name != "" {
		result = name
		if version != "" {
			result += " " + version
		}
		if osInfo := parsed.OS(); osInfo != "" {
			result += " on " + osInfo
		}
	}

	if len(result) > maxUserAgentLength {
		result = result[:maxUserAgentLength]
	}
	return result
}
