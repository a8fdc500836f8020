// Package catalog provides the read-only accommodation reference data the
// booking flow prices against: accommodation id, nightly rate in CELO base
// units and availability. Entries come from a TOML file or the built-in
// sample set.
package catalog

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"ubook/native/booking"
)

// Entry describes a single bookable accommodation.
type Entry struct {
	ID            string
	Name          string
	Type          string
	Location      string
	PricePerNight *big.Int
	Available     bool
}

// Catalog is an immutable, insertion-ordered accommodation index.
type Catalog struct {
	entries []Entry
	byID    map[string]int
}

type fileEntry struct {
	ID            string `toml:"id"`
	Name          string `toml:"name"`
	Type          string `toml:"type"`
	Location      string `toml:"location"`
	PricePerNight string `toml:"price_per_night"`
	Available     bool   `toml:"available"`
}

type catalogFile struct {
	Accommodations []fileEntry `toml:"accommodation"`
}

// Load reads a catalog from the TOML file at path.
func Load(path string) (*Catalog, error) {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return build(file.Accommodations)
}

func build(raw []fileEntry) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(raw))}
	for _, entry := range raw {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: entry %q missing id", entry.Name)
		}
		if _, exists := c.byID[id]; exists {
			return nil, fmt.Errorf("catalog: duplicate accommodation id %s", id)
		}
		price, err := booking.ParseAmount(entry.PricePerNight)
		if err != nil {
			return nil, fmt.Errorf("catalog: accommodation %s: %w", id, err)
		}
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("catalog: accommodation %s: nightly price must be positive", id)
		}
		c.byID[id] = len(c.entries)
		c.entries = append(c.entries, Entry{
			ID:            id,
			Name:          strings.TrimSpace(entry.Name),
			Type:          strings.TrimSpace(entry.Type),
			Location:      strings.TrimSpace(entry.Location),
			PricePerNight: price,
			Available:     entry.Available,
		})
	}
	if len(c.entries) == 0 {
		return nil, fmt.Errorf("catalog: no accommodations defined")
	}
	return c, nil
}

// Get returns the entry for id with a defensive copy of the price.
func (c *Catalog) Get(id string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx].clone(), true
}

// List returns all entries in definition order.
func (c *Catalog) List() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry.clone())
	}
	return out
}

func (e Entry) clone() Entry {
	clone := e
	clone.PricePerNight = new(big.Int).Set(e.PricePerNight)
	return clone
}

// Default returns the built-in sample catalog used when no file is
// configured.
func Default() *Catalog {
	c, err := build(sampleAccommodations)
	if err != nil {
		// The sample set is static; failing to build it is a programming
		// error.
		panic(err)
	}
	return c
}

var sampleAccommodations = []fileEntry{
	{ID: "1", Name: "Kampala Paradise Hotel", Type: "hotel", Location: "Kampala, Central Region", PricePerNight: "5", Available: true},
	{ID: "2", Name: "Bwindi Mountain Lodge", Type: "homestay", Location: "Bwindi Impenetrable Forest", PricePerNight: "8", Available: true},
	{ID: "3", Name: "Nile River Restaurant & Stay", Type: "restaurant-hotel", Location: "Jinja, Eastern Region", PricePerNight: "4", Available: true},
	{ID: "4", Name: "Queen Elizabeth Safari Lodge", Type: "hotel", Location: "Queen Elizabeth National Park", PricePerNight: "12", Available: true},
	{ID: "5", Name: "Rural Mbarara Homestay", Type: "homestay", Location: "Mbarara, Western Region", PricePerNight: "3", Available: true},
	{ID: "6", Name: "Lake Victoria Boutique Hotel", Type: "hotel", Location: "Entebbe, Central Region", PricePerNight: "10", Available: true},
}
