package ledger

import (
	_ "embed"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Products []struct {
		Name      string `yaml:"name"`
		BasePrice string `yaml:"base_price"`
	} `yaml:"products"`
}

// ParseCatalog decodes a YAML product catalog into zero-quantity stock items.
func ParseCatalog(data []byte) ([]StockItem, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	items := make([]StockItem, 0, len(f.Products))
	seen := make(map[string]bool, len(f.Products))
	for _, p := range f.Products {
		name := NormalizeProductName(p.Name)
		if name == "" {
			return nil, fmt.Errorf("parse catalog: empty product name")
		}
		if seen[name] {
			return nil, fmt.Errorf("parse catalog: duplicate product %s", name)
		}
		seen[name] = true
		price := decimal.Zero
		if p.BasePrice != "" {
			var err error
			price, err = decimal.NewFromString(p.BasePrice)
			if err != nil {
				return nil, fmt.Errorf("parse catalog: product %s: %w", name, err)
			}
		}
		items = append(items, StockItem{
			ProductName: name,
			AvailableKg: decimal.Zero,
			BasePrice:   price,
			Movements:   []Movement{},
		})
	}
	return items, nil
}

// DefaultCatalog returns the built-in product list with zero quantities.
// A fresh slice is returned on every call.
func DefaultCatalog() []StockItem {
	items, err := ParseCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return items
}
