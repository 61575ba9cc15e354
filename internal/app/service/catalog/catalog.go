// Package catalog resolves product snapshots from the storefront's catalog
// service. It is read-only.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/httpclient"
	"github.com/fatflowers/dropship/pkg/money"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID        string
	Title     string
	ImageURL  string
	Price     int64
	Available bool
}

type Provider interface {
	Resolve(ctx context.Context, id string) (*Product, error)
}

// HTTPProvider reads GET {base}/products/{id}.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
	log     *zap.SugaredLogger
}

func NewHTTPProvider(cfg *config.Config, log *zap.SugaredLogger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.Catalog.BaseURL, "/"),
		apiKey:  cfg.Catalog.APIKey,
		client:  httpclient.NewClient(cfg.Catalog.Timeout),
		log:     log,
	}
}

type productResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url"`
	Price     string `json:"price"`
	Available *bool  `json:"available"`
}

func (p *HTTPProvider) Resolve(ctx context.Context, id string) (*Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	h := http.Header{}
	if p.apiKey != "" {
		h.Set("X-Api-Key", p.apiKey)
	}
	var out productResponse
	err := p.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    p.baseURL + "/products/" + url.PathEscape(id),
		Header: h,
	}, &out)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("resolve product %s: %w", id, err)
	}
	// scraped prices arrive as display strings such as "$1,299.00"
	price, err := money.ParseMajor(out.Price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", id, err)
	}
	available := out.Available == nil || *out.Available
	if out.ID == "" {
		out.ID = id
	}
	return &Product{ID: out.ID, Title: out.Title, ImageURL: out.ImageURL, Price: price, Available: available}, nil
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewHTTPProvider, fx.As(new(Provider))),
	),
)
