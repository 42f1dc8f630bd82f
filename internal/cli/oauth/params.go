// Package oauth ingests the federated-login redirect and commits its credential.
package oauth

import (
	"net/url"

	"github.com/samber/lo"
)

// Params is what a redirect URL carries
type Params struct {
	Token string
	Error string
	Debug DebugInfo
}

// DebugInfo describes where Extract looked
type DebugInfo struct {
	URL          string            `json:"url"`
	Search       string            `json:"search"`
	Hash         string            `json:"hash"`
	SearchParams map[string]string `json:"searchParams"`
	HashParams   map[string]string `json:"hashParams"`
	Token        string            `json:"token"`
	Error        string            `json:"error"`
}

// Extract reads the credential and error from u.
//
// Query and fragment are parsed independently. The credential is the first
// non-empty of: query token, query access_token, fragment token, fragment
// access_token. The error comes from the query, else the fragment.
func Extract(u *url.URL) Params {
	query := u.Query()
	fragment, _ := url.ParseQuery(u.EscapedFragment())

	token := lo.CoalesceOrEmpty(
		query.Get("token"),
		query.Get("access_token"),
		fragment.Get("token"),
		fragment.Get("access_token"),
	)
	errParam := lo.CoalesceOrEmpty(query.Get("error"), fragment.Get("error"))

	debug := DebugInfo{
		URL:          u.String(),
		SearchParams: flatten(query),
		HashParams:   flatten(fragment),
		Token:        "Not found",
		Error:        lo.CoalesceOrEmpty(errParam, "None"),
	}
	if u.RawQuery != "" {
		debug.Search = "?" + u.RawQuery
	}
	if f := u.EscapedFragment(); f != "" {
		debug.Hash = "#" + f
	}
	if token != "" {
		debug.Token = "Found"
	}

	return Params{Token: token, Error: errParam, Debug: debug}
}

func flatten(values url.Values) map[string]string {
	return lo.MapValues(values, func(v []string, _ string) string {
		return lo.FirstOrEmpty(v)
	})
}
