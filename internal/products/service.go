// Package products serves the catalog read operations: published listings
// with the store's category mapping and wine-type filtering, and the
// similar-product recommendation used on product pages.
package products

import (
	"context"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

// Catalog is the slice of the storefront client this service needs.
type Catalog interface {
	FetchProduct(ctx context.Context, productID int64) (*nuvemshop.Product, error)
	FetchProducts(ctx context.Context, query nuvemshop.ProductQuery) ([]nuvemshop.Product, error)
}

// The storefront category ids behind the friendly names the frontend sends.
// Wine colors all live under the wines parent category and are narrowed by
// variant values after the fetch.
const wineParentCategoryID int64 = 31974513

var categoryIDs = map[string]int64{
	"tinto":         wineParentCategoryID,
	"branco":        wineParentCategoryID,
	"rose":          wineParentCategoryID,
	"amana":         31974539,
	"una":           31974540,
	"singular":      32613020,
	"cafe":          31974516,
	"em grao":       31974553,
	"em po":         31974549,
	"diversos":      31974526,
	"experiencias":  31974528,
	"vale-presente": 31974530,
}

var wineTypes = map[string]bool{"tinto": true, "branco": true, "rose": true}

const similarLimit = 6

// Query filters the listing. Category takes the frontend's friendly name,
// not the storefront id.
type Query struct {
	Page     int
	PerPage  int
	Category string
	Search   string
}

type Service struct {
	catalog Catalog
	log     *logger.Logger
}

func NewService(catalog Catalog, log *logger.Logger) *Service {
	return &Service{catalog: catalog, log: log}
}

// List returns published products, mapping the friendly category name to the
// storefront category id and narrowing wine colors by variant values.
func (s *Service) List(ctx context.Context, query Query) ([]nuvemshop.Product, error) {
	apiQuery := nuvemshop.ProductQuery{
		Page:      query.Page,
		PerPage:   query.PerPage,
		Published: true,
		Search:    query.Search,
	}

	category := cleanString(query.Category)
	if id, ok := categoryIDs[category]; ok {
		apiQuery.CategoryID = id
	}

	products, err := s.catalog.FetchProducts(ctx, apiQuery)
	if err != nil {
		return nil, err
	}

	if wineTypes[category] {
		products = filterByWineType(products, category)
	}
	return products, nil
}

// Get loads one product by id.
func (s *Service) Get(ctx context.Context, productID int64) (*nuvemshop.Product, error) {
	return s.catalog.FetchProduct(ctx, productID)
}

// Similar recommends up to six products near the given one: same category
// and either same region or a price within 30%. When that is empty it
// widens to same category, then to anything else published.
func (s *Service) Similar(ctx context.Context, productID int64) ([]nuvemshop.Product, error) {
	current, err := s.catalog.FetchProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	all, err := s.catalog.FetchProducts(ctx, nuvemshop.ProductQuery{
		Page:      1,
		PerPage:   50,
		Published: true,
	})
	if err != nil {
		return nil, err
	}

	others := make([]nuvemshop.Product, 0, len(all))
	for _, p := range all {
		if p.ID != current.ID {
			others = append(others, p)
		}
	}

	category := firstCategoryName(current)
	region := current.Region
	price := firstVariantPrice(current)

	matches := make([]nuvemshop.Product, 0, len(others))
	for _, p := range others {
		if firstCategoryName(&p) != category {
			continue
		}
		sameRegion := region != "" && p.Region == region
		closePrice := math.Abs(price-firstVariantPrice(&p)) <= price*0.3
		if sameRegion || closePrice {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		for _, p := range others {
			if firstCategoryName(&p) == category {
				matches = append(matches, p)
			}
		}
	}
	if len(matches) == 0 {
		matches = others
	}
	if len(matches) > similarLimit {
		matches = matches[:similarLimit]
	}
	return matches, nil
}

func filterByWineType(products []nuvemshop.Product, wineType string) []nuvemshop.Product {
	filtered := products[:0]
	for _, product := range products {
		if hasVariantValue(product, wineType) {
			filtered = append(filtered, product)
		}
	}
	return filtered
}

func hasVariantValue(product nuvemshop.Product, want string) bool {
	for _, variant := range product.Variants {
		for _, values := range variant.Values {
			if cleanString(values["pt"]) == want {
				return true
			}
		}
	}
	return false
}

func firstCategoryName(product *nuvemshop.Product) string {
	if len(product.Categories) == 0 {
		return ""
	}
	return product.Categories[0].Name["pt"]
}

func firstVariantPrice(product *nuvemshop.Product) float64 {
	if len(product.Variants) == 0 {
		return 0
	}
	price, err := strconv.ParseFloat(product.Variants[0].Price, 64)
	if err != nil {
		return 0
	}
	return price
}

// cleanString lowercases and strips accents, matching how category names and
// variant values are compared against frontend input ("rosé" == "rose").
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func cleanString(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	stripped, _, err := transform.String(accentStripper, lowered)
	if err != nil {
		return lowered
	}
	return stripped
}
