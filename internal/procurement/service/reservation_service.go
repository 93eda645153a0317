package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/repository"
)

// ReservationService manages the installer reservation a project needs
// between material readiness and installation.
type ReservationService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewReservationService(repos *repository.Repositories, logger *zap.Logger) *ReservationService {
	return &ReservationService{repos: repos, logger: logger}
}

// RequestReservation marks the installer request as sent for a project.
func (s *ReservationService) RequestReservation(ctx context.Context, actor Actor, projectID, installerCompany string) (*entity.InstallationReservation, error) {
	const op = "reservation.request"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(installerCompany) == "" {
		return nil, validationErr(op, "Montagepartner ist erforderlich.")
	}
	if _, err := s.repos.Project.FindByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(op, fmt.Sprintf("Projekt %s nicht gefunden.", projectID))
		}
		return nil, internalErr(op, "Projekt konnte nicht geladen werden.", err)
	}

	now := time.Now()
	reservation := &entity.InstallationReservation{
		ID:                 newID(),
		ProjectID:          projectID,
		Status:             entity.ReservationStatusRequested,
		InstallerCompany:   strings.TrimSpace(installerCompany),
		RequestEmailSentAt: &now,
	}
	if err := s.repos.Reservation.Upsert(ctx, reservation); err != nil {
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Reservierungs-Tabelle fehlt. Bitte Migrationen ausführen (installation_reservations).")
		}
		return nil, internalErr(op, "Reservierung konnte nicht gespeichert werden.", err)
	}
	return s.repos.Reservation.FindByProject(ctx, projectID)
}

// ConfirmReservation records the installer's confirmation.
func (s *ReservationService) ConfirmReservation(ctx context.Context, actor Actor, projectID string, confirmationDate time.Time) (*entity.InstallationReservation, error) {
	const op = "reservation.confirm"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	reservation, err := s.repos.Reservation.FindByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(op, "Für dieses Projekt wurde noch keine Reservierung angefragt.")
		}
		return nil, internalErr(op, "Reservierung konnte nicht geladen werden.", err)
	}
	if reservation.Status == entity.ReservationStatusCancelled {
		return nil, validationErr(op, "Eine stornierte Reservierung kann nicht bestätigt werden.")
	}

	reservation.Status = entity.ReservationStatusConfirmed
	reservation.ConfirmationDate = &confirmationDate
	if err := s.repos.Reservation.Upsert(ctx, reservation); err != nil {
		return nil, internalErr(op, "Reservierung konnte nicht bestätigt werden.", err)
	}

	s.logger.Info("installation reservation confirmed",
		zap.String("project_id", projectID),
		zap.String("installer", reservation.InstallerCompany),
	)
	return reservation, nil
}
