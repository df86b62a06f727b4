package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mayank009/cashew/internal/billing"
)

func TestParseIntervals(t *testing.T) {
	got, err := parseIntervals([]string{"7", "30", "0"})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 30, 0}, got)

	_, err = parseIntervals([]string{"7", "soon"})
	assert.ErrorContains(t, err, `"soon"`)
}

func TestTableCommandWritesConfiguredNames(t *testing.T) {
	t.Setenv("CASHEW_SUBSCRIPTIONS_TABLE", "acme_subs")
	t.Setenv("CASHEW_INVOICES_TABLE", "acme_invoices")
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"table", "--dir", dir})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)

	body, err := os.ReadFile(filepath.Join(dir, "000002_create_invoices.up.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "acme_invoices")
}

func TestMigrateRejectsUnknownAction(t *testing.T) {
	rootCmd.SetArgs([]string{"migrate", "sideways"})
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "unknown action")
}

func TestChargeRejectsNonIntegerAmount(t *testing.T) {
	rootCmd.SetArgs([]string{"charge", "42", "12.50"})
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, `invalid amount "12.50"`)
}

func TestSubscribeRejectsBadTrialEnd(t *testing.T) {
	rootCmd.SetArgs([]string{"subscribe", "42", "--plan", "pro", "--trial-end", "next week"})
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "invalid --trial-end")
}

func TestWriteInvoice(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := billing.Invoice{
		ID: "in_1", Currency: "usd", Date: day, PeriodStart: day, PeriodEnd: day.AddDate(0, 1, 0),
		Total: 123456, Subtotal: 133456,
	}

	var out bytes.Buffer
	writeInvoice(&out, inv)
	assert.Equal(t, "in_1\tMar 1, 2026\tMar 1, 2026 - Apr 1, 2026\ttotal 1,234.56\tsubtotal 1,334.56\tdiscount 100.00\n", out.String())

	out.Reset()
	inv.Subtotal = inv.Total
	writeInvoice(&out, inv)
	assert.NotContains(t, out.String(), "discount")
}
