package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lherron/navmerge/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves a JSON document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client reads the ATT&CK STIX bundles published in the mitre/cti repository.
type Client struct {
	fetcher Fetcher
	baseURL string
	log     *logging.Logger
}

// NewClient creates a Client reading bundles below baseURL.
func NewClient(fetcher Fetcher, baseURL string, log *logging.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// BundleURL returns the location of a domain's STIX bundle.
func (c *Client) BundleURL(domain string) string {
	return fmt.Sprintf("%s/%s-attack/%s-attack.json", c.baseURL, domain, domain)
}

// FetchDomain downloads and parses one domain's bundle.
func (c *Client) FetchDomain(ctx context.Context, domain string) ([]Entry, error) {
	if !ValidDomain(domain) {
		return nil, fmt.Errorf("the domain %s has not been recognized", domain)
	}
	url := c.BundleURL(domain)
	c.log.Debugf("fetching %s", url)

	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s catalog: %w", domain, err)
	}
	entries, err := ParseBundle(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s catalog: %w", domain, err)
	}
	return entries, nil
}

// FetchDomains downloads the bundles of several domains in parallel. The
// first failure cancels the remaining downloads.
func (c *Client) FetchDomains(ctx context.Context, domains []string) (map[string][]Entry, error) {
	results := make([][]Entry, len(domains))
	g, gctx := errgroup.WithContext(ctx)

	for i, domain := range domains {
		i, domain := i, domain
		g.Go(func() error {
			entries, err := c.FetchDomain(gctx, domain)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	byDomain := make(map[string][]Entry, len(domains))
	for i, domain := range domains {
		byDomain[domain] = results[i]
		c.log.Infof("%d groups and software found in the %s catalog", len(results[i]), domain)
	}
	return byDomain, nil
}

// Combine unions per-domain entries by ID. Each entry ends up listing every
// domain it was published in, in canonical order. The result is sorted by ID.
func Combine(byDomain map[string][]Entry) []Entry {
	index := make(map[string]int)
	var all []Entry
	for _, domain := range Domains {
		for _, e := range byDomain[domain] {
			domains := append([]string(nil), e.Domains...)
			if !contains(domains, domain) {
				domains = append(domains, domain)
			}

			i, ok := index[e.ID]
			if !ok {
				e.Domains = sortDomains(domains)
				index[e.ID] = len(all)
				all = append(all, e)
				continue
			}
			for _, d := range domains {
				if !contains(all[i].Domains, d) {
					all[i].Domains = append(all[i].Domains, d)
				}
			}
			sortDomains(all[i].Domains)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
