package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/coupon"
)

func writeGz(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codes.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestValidCode(t *testing.T) {
	assert.True(t, validCode("SUMMER24"))
	assert.False(t, validCode("ABC"))
	assert.False(t, validCode("SUMMER-24"))
	assert.False(t, validCode("summer24"))
	assert.False(t, validCode(strings.Repeat("A", maxCodeLen+1)))
}

func TestRuleTemplate(t *testing.T) {
	rule, err := ruleTemplate(options{
		discountType: "fixed",
		value:        "12.50",
		maxUses:      1,
		validUntil:   "2026-12-31",
		description:  "Partner voucher",
	})
	require.NoError(t, err)
	assert.Equal(t, coupon.DiscountFixed, rule.DiscountType)
	assert.True(t, decimal.RequireFromString("12.50").Equal(rule.Value))
	assert.True(t, rule.Active)
	require.NotNil(t, rule.ValidUntil)
	assert.Equal(t, 2026, rule.ValidUntil.Year())

	_, err = ruleTemplate(options{discountType: "bogo", value: "1"})
	require.Error(t, err)

	_, err = ruleTemplate(options{discountType: "percent", value: "150"})
	require.Error(t, err)

	_, err = ruleTemplate(options{discountType: "percent", value: "10", validUntil: "tomorrow"})
	require.Error(t, err)
}

func TestReadVouchers(t *testing.T) {
	ctx := context.Background()
	revokedPath := writeGz(t, "BURNED01")
	revoked, err := loadRevoked(ctx, zap.NewNop(), revokedPath)
	require.NoError(t, err)

	path := writeGz(t, "good0001", " GOOD0002 ", "bad", "BURNED01", "")

	var stats ingestStats
	codes := make(chan string, 10)
	require.NoError(t, readVouchers(ctx, zap.NewNop(), path, revoked, codes, &stats))
	close(codes)

	var got []string
	for c := range codes {
		got = append(got, c)
	}
	assert.Equal(t, []string{"GOOD0001", "GOOD0002"}, got)
	assert.EqualValues(t, 5, stats.read.Load())
	assert.EqualValues(t, 2, stats.invalid.Load())
	assert.EqualValues(t, 1, stats.revoked.Load())
}

func TestReadVouchers_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	path := writeGz(t, "GOOD0001", "GOOD0002")

	var stats ingestStats
	codes := make(chan string) // never drained
	cancel()
	err := readVouchers(ctx, zap.NewNop(), path, nil, codes, &stats)
	require.ErrorIs(t, err, context.Canceled)
}
