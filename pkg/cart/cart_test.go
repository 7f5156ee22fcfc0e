package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
)

type fakeCart struct {
	mu    sync.Mutex
	fail  map[int64]error
	added map[int64]int
	calls int
}

func (f *fakeCart) AddToCart(_ context.Context, code int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[code]; err != nil {
		return err
	}
	if f.added == nil {
		f.added = make(map[int64]int)
	}
	f.added[code] += qty
	return nil
}

func resolved(label string, code int64, qty int, price string) Item {
	return Item{
		Label:    label,
		Quantity: qty,
		Status:   grocery.StatusAutoResolved,
		Product:  &grocery.Product{Stockcode: code, Name: label, Price: decimal.RequireFromString(price)},
	}
}

func fiveItems() []Item {
	return []Item{
		resolved("milk", 1, 2, "3.10"),
		resolved("eggs", 2, 1, "6.50"),
		resolved("bread", 3, 1, "4.00"),
		resolved("bananas", 4, 6, "0.80"),
		resolved("cheese", 5, 1, "9.00"),
	}
}

func TestBuildIsolatesFailures(t *testing.T) {
	for _, n := range []int{1, 3} {
		fc := &fakeCart{fail: map[int64]error{3: stores.Fail(stores.KindTransport, "add to cart", errors.New("boom"))}}
		rep := NewBuilder(fc, WithConcurrency(n)).Build(context.Background(), fiveItems(), true)

		assert.Equal(t, 5, fc.calls)
		assert.Equal(t, 4, rep.Added)
		assert.Equal(t, 1, rep.Failed)
		assert.True(t, rep.PartialFailure())
		assert.False(t, rep.NeedsReauth())
		require.Len(t, rep.Results, 5)
		for i, res := range rep.Results {
			assert.Equal(t, fiveItems()[i].Label, res.Item.Label, "results keep input order")
		}
		assert.Equal(t, OutcomeFailed, rep.Results[2].Outcome)
		assert.ErrorIs(t, rep.Results[2].Err, stores.ErrTransport)
		require.Len(t, rep.Errors(), 1)
		// 2*3.10 + 6.50 + 6*0.80 + 9.00
		assert.Equal(t, "26.5", rep.EstimatedTotal.String())
	}
}

func TestBuildPreviewDoesNotMutate(t *testing.T) {
	fc := &fakeCart{}
	rep := NewBuilder(fc).Build(context.Background(), fiveItems(), false)

	assert.Zero(t, fc.calls)
	assert.Equal(t, 5, rep.Previewed)
	assert.Zero(t, rep.Added)
	assert.False(t, rep.Confirmed)
	assert.Equal(t, "30.5", rep.EstimatedTotal.String())
}

func TestBuildSkipsUnresolved(t *testing.T) {
	fc := &fakeCart{}
	items := []Item{
		resolved("milk", 1, 0, "3.10"),
		{Label: "yoghurt", Quantity: 1, Status: grocery.StatusAmbiguous},
		{Label: "unobtainium", Quantity: 1, Status: grocery.StatusUnresolved},
		{Label: "bread", Quantity: 1, Status: grocery.StatusUserConfirmed},
	}
	rep := NewBuilder(fc).Build(context.Background(), items, true)

	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, 3, rep.Skipped)
	assert.Equal(t, 1, fc.added[1], "quantity defaults to 1")
	assert.Equal(t, "ambiguous, pick a product first", rep.Results[1].Reason)
	assert.Equal(t, "no product", rep.Results[3].Reason)
	assert.False(t, rep.PartialFailure())
}

func TestBuildReportsReauth(t *testing.T) {
	fc := &fakeCart{fail: map[int64]error{
		1: stores.Fail(stores.KindAuthExpired, "add to cart", nil),
		2: stores.Fail(stores.KindAuthExpired, "add to cart", nil),
	}}
	rep := NewBuilder(fc).Build(context.Background(), fiveItems()[:2], true)

	assert.Equal(t, 2, rep.Failed)
	assert.False(t, rep.PartialFailure(), "nothing was added")
	assert.True(t, rep.NeedsReauth())
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc := &fakeCart{}
	rep := NewBuilder(fc).Build(ctx, fiveItems(), true)

	assert.Zero(t, fc.calls)
	assert.Equal(t, 5, rep.Failed)
	assert.ErrorIs(t, rep.Results[0].Err, context.Canceled)
}

func TestRunIDIsUnique(t *testing.T) {
	b := NewBuilder(&fakeCart{})
	a := b.Build(context.Background(), nil, false)
	c := b.Build(context.Background(), nil, false)
	_, err := uuid.Parse(a.RunID)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, c.RunID)
}

func TestFromListItem(t *testing.T) {
	it := FromListItem(grocery.ListItem{ID: 7, Label: "milk", Quantity: 2, Stockcode: 123456, ProductName: "Milk 2L", Price: decimal.RequireFromString("3.10"), Status: grocery.StatusUserConfirmed})
	require.NotNil(t, it.Product)
	assert.Equal(t, int64(123456), it.Product.Stockcode)
	assert.Equal(t, int64(7), it.ListItem)

	it = FromListItem(grocery.ListItem{Label: "eggs", Quantity: 1, Status: grocery.StatusUnresolved})
	assert.Nil(t, it.Product)
}
