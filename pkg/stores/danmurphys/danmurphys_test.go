package danmurphys

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/trolleyctl/trolley/pkg/stores"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != searchPath {
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "/pinot-noir", gjson.GetBytes(body, "PageUrl").String())
		assert.True(t, gjson.GetBytes(body, "Filters").IsArray())
		w.Write([]byte(`{"Products":[{"Products":[
			{"Stockcode":"12345","Title":"Devil's Corner Pinot Noir","Brand":"Devil's Corner","VolumeSize":"750mL",
			 "IsSpecial":true,
			 "Price":{"singleprice":{"Value":22.99,"BeforePromotion":27.99},"inanysixprice":{"Value":20.5}},
			 "AdditionalDetails":[{"Name":"webdescriptionshort","Value":"<p>Bright red fruit.</p>"},{"Name":"webisorganic","Value":false}]},
			{"Stockcode":"0","Title":"bogus"}
		]}]}`))
	}))
	defer srv.Close()

	p, err := New(Options{BaseURL: srv.URL, HomepageURL: srv.URL})
	require.NoError(t, err)
	products, err := p.Search(context.Background(), stores.SearchRequest{Term: "Pinot Noir"})
	require.NoError(t, err)
	require.Len(t, products, 1)

	got := products[0]
	assert.Equal(t, int64(12345), got.Stockcode)
	assert.Equal(t, "22.99", got.Price.String())
	assert.Equal(t, "27.99", got.WasPrice.String())
	assert.Equal(t, "20.5", got.CupPrice.String())
	assert.Equal(t, "$20.50 in any six", got.CupString)
	assert.Equal(t, "750mL", got.PackageSize)
	assert.Equal(t, "Bright red fruit.", got.Description)
	assert.Equal(t, "danmurphys", got.Store)
}

func TestCartUnsupported(t *testing.T) {
	p, err := New(Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, p.AddToCart(context.Background(), 1, 1), stores.ErrUnsupported)
	_, err = p.Cart(context.Background())
	assert.ErrorIs(t, err, stores.ErrUnsupported)
}
