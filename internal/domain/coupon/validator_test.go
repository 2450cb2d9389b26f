package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon      *Coupon
	err         error
	redemptions map[string]int
	lookupCode  string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.lookupCode = code
	if m.err != nil {
		return nil, m.err
	}
	return m.coupon, nil
}

func (m *mockCouponRepo) CustomerRedemptions(_ context.Context, _, customerID string) (int, error) {
	return m.redemptions[customerID], nil
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		code       string
		customerID string
		subtotal   decimal.Decimal
		wantApp    *Application
		wantErr    error
	}{
		{
			name: "valid percentage coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "SAVE10",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
			}},
			code:     "SAVE10",
			subtotal: decimal.NewFromInt(100),
			wantApp: &Application{
				Code:         "SAVE10",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
			},
		},
		{
			name:     "unknown code returns ErrNotFound",
			repo:     &mockCouponRepo{err: ErrNotFound},
			code:     "BOGUS",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrNotFound,
		},
		{
			name: "expired coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "OLD",
				DiscountType: DiscountFixed,
				Value:        decimal.NewFromInt(5),
				ValidUntil:   &pastTime,
			}},
			code:     "OLD",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrExpired,
		},
		{
			name: "not yet valid coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "SOON",
				DiscountType: DiscountFixed,
				Value:        decimal.NewFromInt(5),
				ValidFrom:    &futureTime,
			}},
			code:     "SOON",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrExpired,
		},
		{
			name: "global limit exhausted",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "LIMITED",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
				MaxUses:      100,
				Uses:         100,
			}},
			code:     "LIMITED",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrExhausted,
		},
		{
			name: "per-customer default limit of one",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					Code:         "ONCE",
					DiscountType: DiscountFixed,
					Value:        decimal.NewFromInt(5),
				},
				redemptions: map[string]int{"cust-1": 1},
			},
			code:       "ONCE",
			customerID: "cust-1",
			subtotal:   decimal.NewFromInt(100),
			wantErr:    ErrAlreadyUsed,
		},
		{
			name: "per-customer limit not reached by another customer",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					Code:         "ONCE",
					DiscountType: DiscountFixed,
					Value:        decimal.NewFromInt(5),
				},
				redemptions: map[string]int{"cust-1": 1},
			},
			code:       "ONCE",
			customerID: "cust-2",
			subtotal:   decimal.NewFromInt(100),
			wantApp: &Application{
				Code:         "ONCE",
				DiscountType: DiscountFixed,
				Value:        decimal.NewFromInt(5),
			},
		},
		{
			name: "explicit per-customer limit above one",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					Code:             "TWICE",
					DiscountType:     DiscountFixed,
					Value:            decimal.NewFromInt(5),
					PerCustomerLimit: 2,
				},
				redemptions: map[string]int{"cust-1": 1},
			},
			code:       "TWICE",
			customerID: "cust-1",
			subtotal:   decimal.NewFromInt(100),
			wantApp: &Application{
				Code:         "TWICE",
				DiscountType: DiscountFixed,
				Value:        decimal.NewFromInt(5),
			},
		},
		{
			name: "subtotal below minimum",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "BIG",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(20),
				MinSubtotal:  decimal.NewFromInt(50),
			}},
			code:     "BIG",
			subtotal: decimal.NewFromInt(49),
			wantErr:  ErrMinimumNotMet,
		},
		{
			name: "subtotal exactly at minimum",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "BIG",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(20),
				MinSubtotal:  decimal.NewFromInt(50),
			}},
			code:     "BIG",
			subtotal: decimal.NewFromInt(50),
			wantApp: &Application{
				Code:         "BIG",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(20),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.customerID, tt.subtotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantApp.Code, got.Code)
			assert.Equal(t, tt.wantApp.DiscountType, got.DiscountType)
			assert.True(t, tt.wantApp.Value.Equal(got.Value))
		})
	}
}

func TestRepoValidator_CaseInsensitiveLookup(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		Code:         "SAVE10",
		DiscountType: DiscountPercentage,
		Value:        decimal.NewFromInt(10),
	}}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "save10", "", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.lookupCode)
}
