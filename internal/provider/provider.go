// Package provider adapts each payment provider's webhook scheme: how its
// signature is checked and how its payload decodes into a
// webhook.Notification.
package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/signature"
	"github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

type Provider interface {
	Name() string
	SignatureHeader() string
	// Configured reports whether a verification secret is present.
	Configured() bool
	Verify(body []byte, header http.Header) signature.Result
	Decode(body []byte) (webhook.Notification, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("Get: %s: %w", name, domain.ErrUnknownProvider)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SignatureHeaderFor builds the X-{Provider}-Signature header name.
func SignatureHeaderFor(name string) string {
	if name == "" {
		return "X-Signature"
	}
	return "X-" + strings.ToUpper(name[:1]) + strings.ToLower(name[1:]) + "-Signature"
}
