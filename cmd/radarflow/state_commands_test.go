package main

import (
	"context"
	"testing"
	"time"

	"radarflow/internal/state"
	"radarflow/internal/testsupport"
)

var observed = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestDownloadsAndVolumesList(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.MarkDownloaded(t, env.store, env.cfg, testsupport.RadarName("RMA1", "0315", "01", "DBZH", observed))
	testsupport.ProcessedVolume(t, env.store, observed, "/tmp/vol.nc")

	out, _, err := runCLI(t, []string{"downloads", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("downloads list: %v", err)
	}
	requireContains(t, out, "RMA1_0315_01_DBZH_20250101T120000Z.BUFR")
	requireContains(t, out, "2025-01-01 12:00:00")

	out, _, err = runCLI(t, []string{"volumes", "list", "--status", "completed"}, env.configPath)
	if err != nil {
		t.Fatalf("volumes list: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "2/2")

	if _, _, err := runCLI(t, []string{"volumes", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected invalid status to fail")
	}
}

func TestRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	v := testsupport.ProcessedVolume(t, env.store, observed, "")
	if err := env.store.RegisterProduct(ctx, v.VolumeID, "image"); err != nil {
		t.Fatalf("RegisterProduct: %v", err)
	}
	if err := env.store.MarkProductFailed(ctx, v.VolumeID, "image", "no artifact", state.ErrorTypeNoArtifactPath); err != nil {
		t.Fatalf("MarkProductFailed: %v", err)
	}

	out, _, err := runCLI(t, []string{"products", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("products list: %v", err)
	}
	requireContains(t, out, state.ErrorTypeNoArtifactPath)

	out, _, err = runCLI(t, []string{"retry", "products"}, env.configPath)
	if err != nil {
		t.Fatalf("retry products: %v", err)
	}
	requireContains(t, out, "Reset 1 products")

	if _, _, err := runCLI(t, []string{"clear"}, env.configPath); err == nil {
		t.Fatal("clear without --force must fail")
	}
	if _, _, err := runCLI(t, []string{"clear", "--force"}, env.configPath); err != nil {
		t.Fatalf("clear: %v", err)
	}
	counts, err := env.store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if len(counts.Volumes) != 0 || len(counts.Products) != 0 {
		t.Fatalf("expected empty tables, got %+v", counts)
	}
}

func TestStoreHealth(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Missing tables: none")
}

func TestEvictionCutoff(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := evictionCutoff("", 7, now)
	if err != nil || !got.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("older-than cutoff = %v, %v", got, err)
	}
	got, err = evictionCutoff("2025-02-01", 0, now)
	if err != nil || !got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("before cutoff = %v, %v", got, err)
	}
	if _, err := evictionCutoff("2025-02-01", 7, now); err == nil {
		t.Fatal("expected error when both flags are set")
	}
	if _, err := evictionCutoff("", 0, now); err == nil {
		t.Fatal("expected error without a cutoff")
	}
}
