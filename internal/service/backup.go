package service

import (
	"context"
	"fmt"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
)

func (s *Service) ExportBackup(ctx context.Context) (*domain.Backup, error) {
	backup, err := s.repo.Export(ctx)
	if err != nil {
		return nil, err
	}
	backup.ExportedAt = s.now()
	return backup, nil
}

// ImportBackup replaces the whole dataset. Audit history is kept.
func (s *Service) ImportBackup(ctx context.Context, backup domain.Backup) error {
	if err := store.ValidateBackup(backup); err != nil {
		return err
	}
	if err := s.repo.Import(ctx, backup); err != nil {
		return err
	}
	s.committed(ctx, "database_import", "database", "backup", fmt.Sprintf("products=%d,colors=%d,sales=%d", len(backup.Products), len(backup.Colors), len(backup.Sales)))
	return nil
}
