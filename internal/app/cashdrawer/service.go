package cashdrawer

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type Service struct {
	repo   interfaces.CashDrawerRepository
	logger logger.Logger
}

func NewService(repo interfaces.CashDrawerRepository, lgr logger.Logger) *Service {
	return &Service{repo: repo, logger: lgr}
}

func (s *Service) OpenSession(ctx context.Context, cmd interfaces.OpenSessionCommand) (*domain.CashDrawerSession, error) {
	session, err := domain.NewCashDrawerSession(cmd.TenantID, cmd.DrawerID, cmd.OperatorID, cmd.OpeningFloat)
	if err != nil {
		return nil, err
	}

	if err := s.repo.OpenSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session_opened", "Cash drawer session opened", "", map[string]interface{}{
		"session_id": session.ID,
		"drawer_id":  session.DrawerID,
	})
	return session, nil
}

func (s *Service) RecordWithdrawal(ctx context.Context, cmd interfaces.WithdrawalCommand) (*domain.CashWithdrawal, error) {
	session, err := s.repo.FindSession(ctx, cmd.TenantID, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionOpen {
		return nil, domain.NewConflictError("cash_session", "session "+strconv.FormatInt(session.ID, 10)+" is closed")
	}

	withdrawal, err := domain.NewCashWithdrawal(session.ID, domain.WithdrawalKind(cmd.Kind), cmd.Amount, cmd.Note)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddWithdrawal(ctx, withdrawal); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// Reconcile recomputes the expected balance for an open session. A
// closed or missing session is not reconcilable and fails with
// NotFoundError; any malformed row aborts the whole computation rather
// than producing a partial sum.
func (s *Service) Reconcile(ctx context.Context, tenantID uuid.UUID, sessionID int64) (*domain.Reconciliation, error) {
	session, err := s.repo.FindSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionOpen {
		return nil, domain.NewNotFoundError("open cash session", strconv.FormatInt(sessionID, 10))
	}
	return s.reconcile(ctx, session)
}

func (s *Service) reconcile(ctx context.Context, session *domain.CashDrawerSession) (*domain.Reconciliation, error) {
	from, to := session.Window(time.Now().UTC())

	settlements, err := s.repo.ListSettlements(ctx, session.TenantID, from, to)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListWithdrawals(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	return domain.Reconcile(session, settlements, withdrawals)
}

// CloseSession reconciles, snapshots expected balance and variance
// onto the session and closes it.
func (s *Service) CloseSession(ctx context.Context, cmd interfaces.CloseSessionCommand) (*domain.CashDrawerSession, error) {
	session, err := s.repo.FindSession(ctx, cmd.TenantID, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionOpen {
		return nil, domain.NewNotFoundError("open cash session", strconv.FormatInt(cmd.SessionID, 10))
	}

	now := time.Now().UTC()
	session.ClosedAt = &now

	result, err := s.reconcile(ctx, session)
	if err != nil {
		session.ClosedAt = nil
		return nil, err
	}

	if err := session.Close(result.ExpectedBalance, cmd.CountedBalance, cmd.Notes, cmd.OperatorID, now); err != nil {
		return nil, err
	}
	if err := s.repo.CloseSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session_closed", "Cash drawer session closed", "", map[string]interface{}{
		"session_id": session.ID,
		"expected":   result.ExpectedBalance.StringFixed(2),
		"counted":    cmd.CountedBalance.StringFixed(2),
		"variance":   session.Variance.StringFixed(2),
	})
	return session, nil
}
