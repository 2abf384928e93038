package pagination

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/htmx-starter/internal/apperror"
)

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		params Params
		want   View
	}{
		{
			name:   "last partial page",
			total:  25,
			params: Params{Page: 3, PerPage: 10},
			want: View{
				Page: 3, PerPage: 10, Total: 25, TotalPages: 3,
				HasPrev: true, HasNext: false,
				StartItem: 21, EndItem: 25,
				WindowStart: 1, WindowEnd: 4,
			},
		},
		{
			name:   "empty collection",
			total:  0,
			params: Params{Page: 1, PerPage: 10},
			want: View{
				Page: 1, PerPage: 10, Total: 0, TotalPages: 1,
				HasPrev: false, HasNext: false,
				StartItem: 0, EndItem: 0,
				WindowStart: 1, WindowEnd: 2,
			},
		},
		{
			name:   "first of many",
			total:  95,
			params: Params{Page: 1, PerPage: 10},
			want: View{
				Page: 1, PerPage: 10, Total: 95, TotalPages: 10,
				HasPrev: false, HasNext: true,
				StartItem: 1, EndItem: 10,
				WindowStart: 1, WindowEnd: 4,
			},
		},
		{
			name:   "middle page window",
			total:  95,
			params: Params{Page: 5, PerPage: 10},
			want: View{
				Page: 5, PerPage: 10, Total: 95, TotalPages: 10,
				HasPrev: true, HasNext: true,
				StartItem: 41, EndItem: 50,
				WindowStart: 3, WindowEnd: 8,
			},
		},
		{
			name:   "page past the end",
			total:  5,
			params: Params{Page: 4, PerPage: 10},
			want: View{
				Page: 4, PerPage: 10, Total: 5, TotalPages: 1,
				HasPrev: true, HasNext: false,
				StartItem: 0, EndItem: 0,
				WindowStart: 2, WindowEnd: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.total, tt.params))
		})
	}
}

// TestCompute_Invariants sweeps totals and page sizes and checks the
// relationships every view must satisfy.
func TestCompute_Invariants(t *testing.T) {
	for total := 0; total <= 120; total += 7 {
		for _, perPage := range []int{1, 3, 10, 25, 100} {
			last := TotalPages(total, perPage)

			wantPages := (total + perPage - 1) / perPage
			if total == 0 {
				wantPages = 1
			}
			assert.Equal(t, wantPages, last, "total=%d perPage=%d", total, perPage)

			for page := 1; page <= last; page++ {
				v := Compute(total, Params{Page: page, PerPage: perPage})

				rows := max(0, min(perPage, total-(page-1)*perPage))
				assert.Equal(t, page > 1, v.HasPrev)
				assert.Equal(t, page < last, v.HasNext)

				if rows > 0 {
					assert.Equal(t, rows, v.EndItem-v.StartItem+1, "total=%d perPage=%d page=%d", total, perPage, page)
				} else {
					assert.Zero(t, v.StartItem)
					assert.Zero(t, v.EndItem)
				}
				assert.Contains(t, v.Pages(), page, "window must contain the current page")
			}
		}
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		name                 string
		page, total, perPage int
		want                 int
	}{
		{"inside range", 2, 25, 10, 2},
		{"last page emptied", 3, 20, 10, 2},
		{"everything deleted", 2, 0, 10, 1},
		{"already first", 1, 0, 10, 1},
		{"below one", 0, 15, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampPage(tt.page, tt.total, tt.perPage))
		})
	}
}

func TestParams_Offset(t *testing.T) {
	assert.Equal(t, 0, Params{Page: 1, PerPage: 10}.Offset())
	assert.Equal(t, 20, Params{Page: 3, PerPage: 10}.Offset())
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		wantField string
	}{
		{"first page", Params{Page: 1, PerPage: 1}, ""},
		{"max per page", Params{Page: 7, PerPage: MaxPerPage}, ""},
		{"largest page", Params{Page: math.MaxInt / 10, PerPage: 10}, ""},
		{"page zero", Params{Page: 0, PerPage: 10}, "page"},
		{"negative page", Params{Page: -3, PerPage: 10}, "page"},
		{"per page zero", Params{Page: 1, PerPage: 0}, "per_page"},
		{"per page too big", Params{Page: 1, PerPage: MaxPerPage + 1}, "per_page"},
		{"offset overflows", Params{Page: 922337203685477582, PerPage: 10}, "page"},
		{"offset overflows with max per page", Params{Page: math.MaxInt/MaxPerPage + 1, PerPage: MaxPerPage}, "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.GreaterOrEqual(t, tt.params.Offset(), 0)
				return
			}
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestCompute_HugePageIsEmpty(t *testing.T) {
	p := Params{Page: math.MaxInt, PerPage: 1}
	require.NoError(t, p.Validate())

	v := Compute(3, p)

	assert.Zero(t, v.StartItem)
	assert.Zero(t, v.EndItem)
	assert.False(t, v.HasNext)
	assert.Equal(t, 4, v.WindowEnd)
	assert.Empty(t, v.Pages())
}

func TestView_Pages(t *testing.T) {
	v := Compute(95, Params{Page: 10, PerPage: 10})
	assert.Equal(t, []int{8, 9, 10}, v.Pages())
	assert.Equal(t, 9, v.PrevPage())
	assert.Equal(t, 11, v.NextPage())
}
