package postgres

import (
	"context"
	"testing"
	"time"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("migrate down reset: %v", err)
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status after reset: %v", err)
	}
	if state.Version != 0 || state.Applied != 0 || state.Pending != 1 {
		t.Fatalf("unexpected status after reset: %+v", state)
	}

	for i := 0; i < 2; i++ {
		if err := store.MigrateUp(ctx, 0); err != nil {
			t.Fatalf("migrate up pass %d: %v", i, err)
		}
		state, err = store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("migration status after up pass %d: %v", i, err)
		}
		if state.Version != 1 || state.Applied != 1 || state.Pending != 0 {
			t.Fatalf("unexpected status after up pass %d: %+v", i, state)
		}
	}

	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default step: %v", err)
	}
	state, err = store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status after down: %v", err)
	}
	if state.Version != 0 || state.Applied != 0 {
		t.Fatalf("unexpected status after down: %+v", state)
	}

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down on empty should be no-op: %v", err)
	}
}

func TestMigrator_NilStoreGuards(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := nilStore.MigrateUp(ctx, 0); err == nil {
		t.Fatal("expected error for nil store MigrateUp")
	}
	if err := nilStore.MigrateDown(ctx, 1); err == nil {
		t.Fatal("expected error for nil store MigrateDown")
	}
	if _, err := nilStore.MigrationStatus(ctx); err == nil {
		t.Fatal("expected error for nil store MigrationStatus")
	}
}
