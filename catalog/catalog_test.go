package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ubook/native/booking"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	entries := c.List()
	require.Len(t, entries, 6)
	require.Equal(t, "1", entries[0].ID)
	require.Equal(t, "Kampala Paradise Hotel", entries[0].Name)

	lodge, ok := c.Get("2")
	require.True(t, ok)
	want, err := booking.ParseAmount("8")
	require.NoError(t, err)
	require.Zero(t, lodge.PricePerNight.Cmp(want))
	require.True(t, lodge.Available)

	_, ok = c.Get("99")
	require.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	c := Default()
	entry, ok := c.Get("1")
	require.True(t, ok)
	entry.PricePerNight.SetInt64(0)

	again, _ := c.Get("1")
	require.Positive(t, again.PricePerNight.Sign())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	data := `
[[accommodation]]
id = "lakeview-1"
name = "Lakeview Cabin"
type = "homestay"
location = "Entebbe"
price_per_night = "2.5"
available = true

[[accommodation]]
id = "lakeview-2"
name = "Lakeview Cabin Annex"
type = "homestay"
location = "Entebbe"
price_per_night = "1"
available = false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.List(), 2)

	cabin, ok := c.Get("lakeview-1")
	require.True(t, ok)
	want, err := booking.ParseAmount("2.5")
	require.NoError(t, err)
	require.Zero(t, cabin.PricePerNight.Cmp(want))

	annex, ok := c.Get("lakeview-2")
	require.True(t, ok)
	require.False(t, annex.Available)
}

func TestLoadRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing id": `
[[accommodation]]
name = "No ID"
price_per_night = "1"
`,
		"duplicate id": `
[[accommodation]]
id = "a"
name = "First"
price_per_night = "1"

[[accommodation]]
id = "a"
name = "Second"
price_per_night = "1"
`,
		"zero price": `
[[accommodation]]
id = "a"
name = "Free"
price_per_night = "0"
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
