package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

func TestRunCleanup_RemovesPayloadsWithMissingScripts(t *testing.T) {
	deploys := newMockDeploymentRepo()
	repo := newMockPayloadRepo(deploys)
	store := newMockFileStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	payloads := NewPayloadService(repo, store, log)
	kept, _ := payloads.Create(ctx, CreatePayloadInput{Name: "kept", Version: "1", Script: strings.NewReader("x")})
	orphan, _ := payloads.Create(ctx, CreatePayloadInput{Name: "orphan", Version: "1", Script: strings.NewReader("x")})
	referenced, _ := payloads.Create(ctx, CreatePayloadInput{Name: "referenced", Version: "1", Script: strings.NewReader("x")})

	store.Delete(orphan.StoragePath)
	store.Delete(referenced.StoragePath)
	deploys.Create(ctx, &domain.Deployment{PayloadID: referenced.ID, DeviceID: uuid.New(), Status: domain.DeploymentStatusFailed})

	svc := NewCleanupService(repo, store, log)
	if n := svc.RunCleanup(ctx); n != 1 {
		t.Fatalf("expected 1 payload removed, got %d", n)
	}
	if _, ok := repo.payloads[orphan.ID]; ok {
		t.Fatal("orphan payload should be removed")
	}
	if _, ok := repo.payloads[kept.ID]; !ok {
		t.Fatal("payload with a script must be kept")
	}
	if _, ok := repo.payloads[referenced.ID]; !ok {
		t.Fatal("referenced payload must be kept")
	}
}
