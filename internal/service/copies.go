package service

import (
	"context"

	"github.com/rongwang/library-circulation/internal/models"
)

// RegisterCopy adds a physical copy to the catalog
func (s *DefaultService) RegisterCopy(ctx context.Context, req models.RegisterCopyRequest) (*models.Copy, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.CopyStatusAvailable
	}

	cp := &models.Copy{
		Code:      req.Code,
		BookTitle: req.BookTitle,
		Status:    status,
	}

	if err := s.repo.CreateCopy(ctx, cp); err != nil {
		return nil, wrapError("error registering copy", err)
	}

	return cp, nil
}

func (s *DefaultService) GetCopy(ctx context.Context, copyID string) (*models.Copy, error) {
	cp, err := s.catalog.GetCopy(ctx, copyID)
	if err != nil {
		return nil, infra("error getting copy", err)
	}
	if cp == nil {
		return nil, notFound("copy", copyID)
	}
	return cp, nil
}
