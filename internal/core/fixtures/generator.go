package fixtures

import (
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"menu360/internal/core/domain"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

var namespace = uuid.MustParse("6f1c2c52-8a4e-4b5e-9d1a-3c7e0f4b2a91")

// base anchors generated timestamps so output is stable across runs.
var base = time.Date(2025, time.January, 6, 12, 0, 0, 0, time.UTC)

type Catalog struct {
	Restaurant struct {
		Name     string `yaml:"name"`
		Slug     string `yaml:"slug"`
		Currency string `yaml:"currency"`
	} `yaml:"restaurant"`
	Categories []struct {
		Name  string `yaml:"name"`
		Items []struct {
			Name        string   `yaml:"name"`
			Description string   `yaml:"description"`
			Price       float64  `yaml:"price"`
			Vegetarian  bool     `yaml:"vegetarian"`
			Tags        []string `yaml:"tags"`
		} `yaml:"items"`
	} `yaml:"categories"`
	Staff []struct {
		Name string `yaml:"name"`
		Role string `yaml:"role"`
	} `yaml:"staff"`
	Customers []struct {
		Name  string `yaml:"name"`
		Phone string `yaml:"phone"`
	} `yaml:"customers"`
	Tables []string `yaml:"tables"`
}

// Generator synthesizes demo records. Output depends only on the query key.
type Generator struct {
	cat Catalog
}

func New() (*Generator, error) {
	return Parse(catalogYAML)
}

func Parse(b []byte) (*Generator, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse fixture catalog: %w", err)
	}
	if len(c.Categories) == 0 || len(c.Tables) == 0 {
		return nil, fmt.Errorf("fixture catalog: categories and tables are required")
	}
	return &Generator{cat: c}, nil
}

func MustNew() *Generator {
	g, err := New()
	if err != nil {
		panic(err)
	}
	return g
}

// Generate returns a non-empty list for every known kind.
func (g *Generator) Generate(key domain.QueryKey) []domain.Record {
	rid := key.RestaurantID
	switch key.Kind {
	case domain.KindRestaurants:
		return []domain.Record{g.restaurant(rid)}
	case domain.KindCategories:
		return toRecords(g.categories(rid))
	case domain.KindMenuItems:
		return toRecords(g.menuItems(rid))
	case domain.KindOrders:
		return toRecords(g.orders(rid, key.Scope))
	case domain.KindOrderItems:
		var out []domain.Record
		for _, o := range g.orders(rid, key.Scope) {
			for _, it := range o.Items {
				out = append(out, it)
			}
		}
		return out
	case domain.KindStaff:
		return toRecords(g.staff(rid))
	case domain.KindInvoices:
		return toRecords(g.invoices(rid))
	case domain.KindCustomers:
		return toRecords(g.customers(rid))
	}
	return nil
}

func (g *Generator) id(kind domain.Kind, rid string, parts ...string) string {
	name := string(kind) + "/" + rid
	for _, p := range parts {
		name += "/" + p
	}
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

func (g *Generator) restaurant(rid string) domain.Restaurant {
	if rid == "" {
		rid = g.id(domain.KindRestaurants, "demo")
	}
	return domain.Restaurant{
		ID:        rid,
		Name:      g.cat.Restaurant.Name,
		Slug:      g.cat.Restaurant.Slug,
		Currency:  g.cat.Restaurant.Currency,
		CreatedAt: base.AddDate(0, -6, 0),
	}
}

func (g *Generator) categories(rid string) []domain.Category {
	out := make([]domain.Category, 0, len(g.cat.Categories))
	for i, c := range g.cat.Categories {
		out = append(out, domain.Category{
			ID:           g.id(domain.KindCategories, rid, c.Name),
			RestaurantID: rid,
			Name:         c.Name,
			Position:     i + 1,
			CreatedAt:    base,
		})
	}
	return out
}

func (g *Generator) menuItems(rid string) []domain.MenuItem {
	var out []domain.MenuItem
	for _, c := range g.cat.Categories {
		catID := g.id(domain.KindCategories, rid, c.Name)
		for _, it := range c.Items {
			cid := catID
			tags := it.Tags
			if tags == nil {
				tags = []string{}
			}
			out = append(out, domain.MenuItem{
				ID:           g.id(domain.KindMenuItems, rid, c.Name, it.Name),
				RestaurantID: rid,
				CategoryID:   &cid,
				Name:         it.Name,
				Description:  it.Description,
				Price:        it.Price,
				IsAvailable:  true,
				IsVegetarian: it.Vegetarian,
				Tags:         tags,
				CreatedAt:    base,
				UpdatedAt:    base,
			})
		}
	}
	return out
}

var orderStatuses = []domain.OrderStatus{
	domain.OrderPending,
	domain.OrderPreparing,
	domain.OrderReady,
	domain.OrderServed,
	domain.OrderCompleted,
}

// orders builds one order per status, spread over the tables. A table scope
// pins every order to that table.
func (g *Generator) orders(rid, table string) []domain.Order {
	items := g.menuItems(rid)
	out := make([]domain.Order, 0, len(orderStatuses))
	for i, st := range orderStatuses {
		tid := table
		if tid == "" {
			tid = g.cat.Tables[i%len(g.cat.Tables)]
		}
		oid := g.id(domain.KindOrders, rid, tid, strconv.Itoa(i))
		o := domain.Order{
			ID:           oid,
			RestaurantID: rid,
			TableID:      tid,
			Status:       st,
			CreatedAt:    base.Add(time.Duration(i) * 15 * time.Minute),
		}
		if len(g.cat.Customers) > 0 {
			cu := g.cat.Customers[i%len(g.cat.Customers)]
			o.CustomerName, o.CustomerPhone = cu.Name, cu.Phone
		}
		for j := 0; j < 2; j++ {
			mi := items[(i*2+j)%len(items)]
			itemStatus := domain.ItemPending
			if st != domain.OrderPending && st != domain.OrderPreparing {
				itemStatus = domain.ItemServed
			}
			o.Items = append(o.Items, domain.OrderItem{
				ID:           g.id(domain.KindOrderItems, rid, oid, strconv.Itoa(j)),
				OrderID:      oid,
				RestaurantID: rid,
				MenuItemID:   mi.ID,
				Name:         mi.Name,
				Quantity:     j + 1,
				UnitPrice:    mi.Price,
				Status:       itemStatus,
			})
		}
		o.Total = o.ItemsTotal()
		o.UpdatedAt = o.CreatedAt
		out = append(out, o)
	}
	return out
}

func (g *Generator) staff(rid string) []domain.StaffMember {
	out := make([]domain.StaffMember, 0, len(g.cat.Staff))
	for _, s := range g.cat.Staff {
		out = append(out, domain.StaffMember{
			ID:           g.id(domain.KindStaff, rid, s.Name),
			RestaurantID: rid,
			Name:         s.Name,
			Role:         s.Role,
			Active:       true,
			CreatedAt:    base,
		})
	}
	if len(out) == 0 {
		out = append(out, domain.StaffMember{ID: g.id(domain.KindStaff, rid, "owner"), RestaurantID: rid, Name: "Owner", Role: "manager", Active: true})
	}
	return out
}

func (g *Generator) invoices(rid string) []domain.Invoice {
	var out []domain.Invoice
	for i, o := range g.orders(rid, "") {
		if o.Status != domain.OrderCompleted && o.Status != domain.OrderServed {
			continue
		}
		tax := o.Total * 0.05
		out = append(out, domain.Invoice{
			ID:           g.id(domain.KindInvoices, rid, o.ID),
			RestaurantID: rid,
			OrderID:      o.ID,
			Number:       fmt.Sprintf("INV-%04d", i+1),
			Subtotal:     o.Total,
			Tax:          tax,
			Total:        o.Total + tax,
			Status:       "paid",
			IssuedAt:     o.CreatedAt.Add(time.Hour),
		})
	}
	return out
}

func (g *Generator) customers(rid string) []domain.Customer {
	out := make([]domain.Customer, 0, len(g.cat.Customers))
	for i, c := range g.cat.Customers {
		last := base.AddDate(0, 0, -i)
		out = append(out, domain.Customer{
			ID:           g.id(domain.KindCustomers, rid, c.Name),
			RestaurantID: rid,
			Name:         c.Name,
			Phone:        c.Phone,
			Visits:       3 - i%3,
			LastVisitAt:  &last,
		})
	}
	if len(out) == 0 {
		out = append(out, domain.Customer{ID: g.id(domain.KindCustomers, rid, "guest"), RestaurantID: rid, Name: "Guest", Visits: 1})
	}
	return out
}

func toRecords[T domain.Record](in []T) []domain.Record {
	out := make([]domain.Record, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
