package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

func TestCompare_Exact(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		secondary string
		kind      Kind
		delta     string
	}{
		{"equal", "150.00", "150.00", Matched, "0.00"},
		{"equal with different scale", "150", "150.00", Matched, "0.00"},
		{"secondary lower", "100.00", "90.00", Mismatched, "10.00"},
		{"secondary higher", "90.00", "100.00", Mismatched, "10.00"},
		{"one cent", "10.00", "10.01", Mismatched, "0.01"},
		{"no float drift", "0.3", "0.1", Mismatched, "0.20"},
	}

	c := Exact()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.MustDecimal(tt.primary)
			s := models.MustDecimal(tt.secondary)

			res, err := c.Compare(&p, &s)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.delta, models.FormatMoney(&res.Delta))
		})
	}
}

func TestCompare_DeltaIsSymmetric(t *testing.T) {
	c := Exact()
	a := models.MustDecimal("123.45")
	b := models.MustDecimal("67.8")

	r1, err := c.Compare(&a, &b)
	require.NoError(t, err)
	r2, err := c.Compare(&b, &a)
	require.NoError(t, err)

	assert.Equal(t, 0, r1.Delta.Cmp(&r2.Delta))
	assert.Equal(t, "55.65", r1.Delta.Text('f'))
}

func TestCompare_Tolerance(t *testing.T) {
	c, err := NewComparator(models.MustDecimal("0.05"))
	require.NoError(t, err)

	p := models.MustDecimal("10.00")
	within := models.MustDecimal("10.05")
	outside := models.MustDecimal("10.06")

	res, err := c.Compare(&p, &within)
	require.NoError(t, err)
	assert.Equal(t, Matched, res.Kind)
	assert.Equal(t, "0.05", res.Delta.Text('f'))

	res, err = c.Compare(&p, &outside)
	require.NoError(t, err)
	assert.Equal(t, Mismatched, res.Kind)
}

func TestNewComparator_RejectsNegative(t *testing.T) {
	_, err := NewComparator(models.MustDecimal("-0.01"))
	assert.Error(t, err)
}

func TestKind_LedgerStatus(t *testing.T) {
	assert.Equal(t, "OK", Matched.LedgerStatus())
	assert.Equal(t, "Failed", Mismatched.LedgerStatus())
	assert.Equal(t, "Pending", UnmatchedKey.LedgerStatus())
}

func TestKindFromLedgerStatus(t *testing.T) {
	for _, k := range []Kind{Matched, Mismatched, UnmatchedKey} {
		assert.Equal(t, k, KindFromLedgerStatus(k.LedgerStatus()))
	}
	assert.Equal(t, Kind(""), KindFromLedgerStatus(""))
}
