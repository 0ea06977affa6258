package commerce

import (
	"context"
	"io"

	"github.com/shopspring/decimal"
)

// API is the commerce backend capability consumed by the conversation
// machine. The cart identifier is the chat id rendered as a string; the
// backend creates carts implicitly on first use.
type API interface {
	ListCatalog(ctx context.Context) ([]Product, error)
	ProductImage(ctx context.Context, imageID string) (io.ReadCloser, error)
	AddCartItem(ctx context.Context, cartID, productID string, quantity int) (CartSnapshot, error)
	Cart(ctx context.Context, cartID string) (CartSnapshot, error)
	RemoveCartItem(ctx context.Context, cartID, itemID string) error
	ClearCart(ctx context.Context, cartID string) error
	CreateCustomer(ctx context.Context, name, email string) (string, error)
}

// Product is a denormalized catalog entry: catalog attributes joined with the
// inventory record on product id. Built fresh for every render, never cached.
type Product struct {
	ID          string
	Name        string
	Description string
	// UnitPrice is the price per kilogram, two decimal places.
	UnitPrice decimal.Decimal
	Stock     int
	ImageID   string
}

// CartLine is one product entry inside a cart snapshot.
type CartLine struct {
	// ID is the cart-item id used for removal; distinct from ProductID.
	ID          string
	ProductID   string
	Name        string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// CartSnapshot is the full cart contents as reported by the backend.
type CartSnapshot struct {
	Lines []CartLine
	Total decimal.Decimal
}

// Empty reports whether the cart holds no lines.
func (s CartSnapshot) Empty() bool { return len(s.Lines) == 0 }

// QuantityOf returns the in-cart quantity for a product, 0 when absent.
func (s CartSnapshot) QuantityOf(productID string) int {
	for _, line := range s.Lines {
		if line.ProductID == productID {
			return line.Quantity
		}
	}
	return 0
}

// Wire types, JSON:API style.

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type catalogResponse struct {
	Data []catalogProduct `json:"data"`
}

type catalogProduct struct {
	ID         string `json:"id"`
	Attributes struct {
		Name        string                `json:"name"`
		Description string                `json:"description"`
		Price       map[string]priceField `json:"price"`
	} `json:"attributes"`
	Relationships struct {
		MainImage struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"main_image"`
	} `json:"relationships"`
}

type priceField struct {
	Amount int64 `json:"amount"`
}

type inventoriesResponse struct {
	Data []inventoryRecord `json:"data"`
}

type inventoryRecord struct {
	ID        string `json:"id"`
	Available int    `json:"available"`
}

type fileResponse struct {
	Data struct {
		Link struct {
			Href string `json:"href"`
		} `json:"link"`
	} `json:"data"`
}

type cartItemsResponse struct {
	Data []cartItem `json:"data"`
	Meta struct {
		DisplayPrice struct {
			WithoutTax struct {
				Amount int64 `json:"amount"`
			} `json:"without_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

type cartItem struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   struct {
		Amount int64 `json:"amount"`
	} `json:"unit_price"`
	Value struct {
		Amount int64 `json:"amount"`
	} `json:"value"`
}

type cartItemRequest struct {
	Data struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	} `json:"data"`
}

type customerRequest struct {
	Data struct {
		Type  string `json:"type"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"data"`
}

type customerResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// centsToDecimal converts an integer amount of cents into a two-decimal value.
func centsToDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func (r cartItemsResponse) snapshot() CartSnapshot {
	snap := CartSnapshot{Total: centsToDecimal(r.Meta.DisplayPrice.WithoutTax.Amount)}
	for _, item := range r.Data {
		unit := centsToDecimal(item.UnitPrice.Amount)
		total := centsToDecimal(item.Value.Amount)
		if total.IsZero() && item.Quantity > 0 {
			total = unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		}
		snap.Lines = append(snap.Lines, CartLine{
			ID:          item.ID,
			ProductID:   item.ProductID,
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   unit,
			LineTotal:   total,
		})
	}
	if snap.Total.IsZero() {
		for _, line := range snap.Lines {
			snap.Total = snap.Total.Add(line.LineTotal)
		}
	}
	return snap
}
