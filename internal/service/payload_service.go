package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/storage"
)

// MaxScriptSize bounds an uploaded payload script.
const MaxScriptSize = 1 << 20

var payloadNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type PayloadService struct {
	repo  domain.PayloadRepository
	store storage.FileStore
	log   *slog.Logger
}

func NewPayloadService(repo domain.PayloadRepository, store storage.FileStore, log *slog.Logger) *PayloadService {
	return &PayloadService{repo: repo, store: store, log: log}
}

type CreatePayloadInput struct {
	Name        string
	Version     string
	Description string
	Script      io.Reader
}

// Create stores a new payload version. Payloads are immutable: changing a
// script means uploading it under a new version.
func (s *PayloadService) Create(ctx context.Context, input CreatePayloadInput) (*domain.Payload, error) {
	if input.Name == "" || input.Version == "" {
		return nil, fmt.Errorf("%w: name and version are required", domain.ErrInvalidInput)
	}
	if !payloadNamePattern.MatchString(input.Name) || !payloadNamePattern.MatchString(input.Version) {
		return nil, fmt.Errorf("%w: name and version may only contain letters, digits, '.', '_' and '-'", domain.ErrInvalidInput)
	}
	if input.Script == nil {
		return nil, fmt.Errorf("%w: script is required", domain.ErrInvalidInput)
	}

	// Hash the script while saving
	hasher := sha256.New()
	tee := io.TeeReader(io.LimitReader(input.Script, MaxScriptSize+1), hasher)

	storageName := fmt.Sprintf("%s_%s_%s", input.Name, input.Version, uuid.NewString()[:8])
	storagePath, size, err := s.store.Save(storageName, tee)
	if err != nil {
		return nil, fmt.Errorf("save script: %w", err)
	}
	if size == 0 || size > MaxScriptSize {
		s.store.Delete(storagePath)
		return nil, fmt.Errorf("%w: script must be between 1 byte and %d bytes", domain.ErrInvalidInput, MaxScriptSize)
	}

	payload := &domain.Payload{
		Name:           input.Name,
		Version:        input.Version,
		Description:    input.Description,
		Size:           size,
		ChecksumSHA256: hex.EncodeToString(hasher.Sum(nil)),
		StoragePath:    storagePath,
	}

	if err := s.repo.Create(ctx, payload); err != nil {
		// Clean up stored file on DB error
		s.store.Delete(storagePath)
		return nil, fmt.Errorf("create payload: %w", err)
	}

	s.log.Info("payload created", "id", payload.ID, "name", payload.Name, "version", payload.Version)
	return payload, nil
}

func (s *PayloadService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payload, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PayloadService) List(ctx context.Context, filter domain.PayloadFilter) ([]*domain.Payload, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *PayloadService) OpenScript(ctx context.Context, id uuid.UUID) (io.ReadCloser, *domain.Payload, error) {
	payload, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.store.Open(payload.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open payload script: %w", err)
	}

	return reader, payload, nil
}

// Delete removes a payload that no deployment references.
func (s *PayloadService) Delete(ctx context.Context, id uuid.UUID) error {
	payload, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.store.Delete(payload.StoragePath); err != nil {
		s.log.Warn("failed to delete payload script", "path", payload.StoragePath, "err", err)
	}

	s.log.Info("payload deleted", "id", id)
	return nil
}
