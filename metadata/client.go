// Package metadata fetches property metadata documents referenced by deed
// token URIs, typically served from an IPFS HTTP gateway.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGatewayURL = "https://ipfs.io/ipfs/"

// Attribute is one entry of the ordered attribute sequence carried by a
// property document.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     json.Number `json:"value"`
}

// Property is the external JSON document describing a listed property.
type Property struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Address     string      `json:"address"`
	Attributes  []Attribute `json:"attributes"`
}

// Positional attribute convention used by documents that omit trait names.
const (
	attrIndexPrice     = 0
	attrIndexBedrooms  = 2
	attrIndexBathrooms = 3
	attrIndexArea      = 4
)

// PurchasePrice returns the price attribute, by trait name first and the
// positional convention as a fallback.
func (p *Property) PurchasePrice() (string, bool) {
	return p.attribute("purchase price", attrIndexPrice)
}

// Bedrooms returns the bedroom count attribute.
func (p *Property) Bedrooms() (string, bool) {
	return p.attribute("bedrooms", attrIndexBedrooms)
}

// Bathrooms returns the bathroom count attribute.
func (p *Property) Bathrooms() (string, bool) {
	return p.attribute("bathrooms", attrIndexBathrooms)
}

// Area returns the square footage attribute.
func (p *Property) Area() (string, bool) {
	return p.attribute("square feet", attrIndexArea)
}

func (p *Property) attribute(traitType string, fallbackIndex int) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, attr := range p.Attributes {
		if strings.EqualFold(strings.TrimSpace(attr.TraitType), traitType) {
			return attr.Value.String(), true
		}
	}
	if fallbackIndex >= 0 && fallbackIndex < len(p.Attributes) {
		return p.Attributes[fallbackIndex].Value.String(), true
	}
	return "", false
}

// Client fetches property documents over HTTP. ipfs:// URIs are rewritten to
// the configured gateway.
type Client struct {
	httpClient *http.Client
	gatewayURL string
}

// NewClient creates a metadata client backed by gatewayURL. An empty URL
// falls back to the public IPFS gateway.
func NewClient(gatewayURL string) *Client {
	trimmed := strings.TrimSpace(gatewayURL)
	if trimmed == "" {
		trimmed = defaultGatewayURL
	}
	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		gatewayURL: trimmed,
	}
}

// Fetch retrieves and decodes the property document at uri.
func (c *Client) Fetch(ctx context.Context, uri string) (*Property, error) {
	resolved, err := c.ResolveURI(uri)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, resolved)
	}

	property := &Property{}
	if err := json.NewDecoder(resp.Body).Decode(property); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return property, nil
}

// ResolveURI rewrites ipfs:// URIs to the configured gateway and passes
// http(s) URIs through unchanged.
func (c *Client) ResolveURI(uri string) (string, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return "", fmt.Errorf("token URI required")
	}
	if rest, ok := strings.CutPrefix(trimmed, "ipfs://"); ok {
		return c.gatewayURL + strings.TrimPrefix(rest, "/"), nil
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed, nil
	}
	return "", fmt.Errorf("unsupported token URI scheme: %s", trimmed)
}
