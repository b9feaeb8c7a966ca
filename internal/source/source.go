// Package source defines the contract shared by every bibliographic provider
// and the HTTP plumbing they fetch through.
package source

import (
	"context"
	"fmt"

	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/tree"
)

// Kind tags a provider variant. The set is closed.
type Kind string

const (
	OpenAlex Kind = "openalex"
	HAL      Kind = "hal"
	Flora    Kind = "flora"
	WoS      Kind = "wos"
)

// Kinds lists every provider.
var Kinds = []Kind{OpenAlex, HAL, Flora, WoS}

// ParseKind validates a provider name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown source %q (valid: %v)", s, Kinds)
}

// Payload is the raw output of one fetch: decoded documents in the
// provider's own shape.
type Payload []tree.Node

// Source fetches raw payloads from one provider and maps them into the
// common schema.
type Source interface {
	// Kind identifies the provider.
	Kind() Kind

	// Fetch retrieves the provider's complete raw payload. Errors abort the
	// whole fetch unless the provider documents partial tolerance.
	Fetch(ctx context.Context) (Payload, error)

	// Normalize maps a payload to records. Records that cannot be normalized
	// are left out and reported, one error each, wrapped in ErrSkipped.
	Normalize(payload Payload) ([]record.Record, []error)
}
