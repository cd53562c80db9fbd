// Package casewrap composes case conversion with the identifier and response
// hooks of a query layer, so application code can use one naming convention
// while the database uses another.
package casewrap

import (
	"maps"
	"slices"

	"sqlcase/internal/casing"
	"sqlcase/internal/keymap"
)

// IdentifierFunc renders an identifier for a query. original is the query
// layer's default rendering (quoting) and queryCtx is passed through untouched.
type IdentifierFunc func(value string, original func(string) string, queryCtx any) string

// ResponseFunc post-processes a result set before it reaches the caller.
type ResponseFunc func(result any, queryCtx any) (any, error)

// CaseConfig selects the converter for each direction. Software applies to
// result keys on their way to the application, Database applies to
// identifiers on their way to the database.
type CaseConfig struct {
	Software casing.Kind `mapstructure:"software"`
	Database casing.Kind `mapstructure:"database"`
}

// DefaultCaseConfig returns camelCase for the application and snake_case for
// the database.
func DefaultCaseConfig() CaseConfig {
	return CaseConfig{
		Software: casing.CamelCase,
		Database: casing.SnakeCase,
	}
}

// Config is the query layer configuration that Wrap augments.
type Config struct {
	Case CaseConfig

	// WrapIdentifier is an optional user hook run before case conversion.
	WrapIdentifier IdentifierFunc
	// PostProcessResponse is an optional user hook run after case conversion.
	PostProcessResponse ResponseFunc

	// Options carries the remaining connection options through unchanged.
	Options map[string]any
}

// reserved tokens are never passed through a converter.
var reserved = []string{"*"}

// Reserved returns the tokens exempt from case conversion.
func Reserved() []string {
	return slices.Clone(reserved)
}

// IsReserved reports whether value is exempt from case conversion.
func IsReserved(value string) bool {
	return slices.Contains(reserved, value)
}

// Wrap returns a copy of cfg whose WrapIdentifier and PostProcessResponse
// apply case conversion around any hooks already present in cfg.
//
// Both case kinds must be registered; configuration validation is expected
// to have rejected unknown kinds already.
func Wrap(cfg Config) Config {
	out := cfg
	out.WrapIdentifier = nil
	out.PostProcessResponse = nil
	out.Options = maps.Clone(cfg.Options)

	wrapConverter := casing.MustLookup(cfg.Case.Database)
	postConverter := casing.MustLookup(cfg.Case.Software)

	userWrap := cfg.WrapIdentifier
	userPost := cfg.PostProcessResponse
	hasWrap := userWrap != nil
	hasPost := userPost != nil

	out.WrapIdentifier = func(value string, original func(string) string, queryCtx any) string {
		if hasWrap {
			value = userWrap(value, identity, queryCtx)
		}
		if !IsReserved(value) {
			value = wrapConverter(value)
		}
		if original == nil {
			return value
		}
		return original(value)
	}

	out.PostProcessResponse = func(result any, queryCtx any) (any, error) {
		result = keymap.Rewrite(result, postConverter)
		if hasPost {
			return userPost(result, queryCtx)
		}
		return result, nil
	}

	return out
}

func identity(s string) string { return s }
