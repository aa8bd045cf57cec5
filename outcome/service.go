package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"outcomes/jsondoc"
	"outcomes/logger"
	"outcomes/outbox"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ChangeWriter records a change message inside the write transaction.
type ChangeWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, msg outbox.ChangeMessage) error
}

// Scope is the route path every outcome lives under.
type Scope struct {
	CustomerID    string
	InteractionID string
	ActionPlanID  string
}

type CreateRequest struct {
	Scope        Scope
	TouchpointID string
	// BaseURL is the collection URL; the new id is appended for the change message.
	BaseURL string
	Outcome Outcome
}

type PatchRequest struct {
	Scope        Scope
	OutcomeID    string
	TouchpointID string
	ResourceURL  string
	Patch        OutcomePatch
}

type Service struct {
	pool        TxBeginner
	repo        Repository
	changes     ChangeWriter
	validator   *Validator
	log         *logger.Logger
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Repository, changes ChangeWriter, log *logger.Logger) *Service {
	if changes == nil {
		changes = outbox.NewWriter()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		changes:     changes,
		validator:   NewValidator(),
		log:         log.With("service", "OutcomeService"),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.validator.WithClock(now)
	return s
}

func (s *Service) List(ctx context.Context, scope Scope) ([]Outcome, error) {
	if err := s.checkScope(ctx, scope, false); err != nil {
		return nil, err
	}
	list, err := s.repo.List(ctx, scope.CustomerID, scope.ActionPlanID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrOutcomeNotFound
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, scope Scope, outcomeID string) (Outcome, error) {
	if err := s.checkScope(ctx, scope, false); err != nil {
		return Outcome{}, err
	}
	return s.repo.Get(ctx, scope.CustomerID, scope.ActionPlanID, outcomeID)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Outcome, error) {
	if req.TouchpointID == "" {
		return Outcome{}, fmt.Errorf("outcome: missing touchpoint id")
	}
	if err := s.checkScope(ctx, req.Scope, true); err != nil {
		return Outcome{}, err
	}

	o := req.Outcome
	o.OutcomeID = s.idGenerator()
	o.CustomerID = req.Scope.CustomerID
	o.ActionPlanID = req.Scope.ActionPlanID
	if o.TouchpointID == "" {
		o.TouchpointID = req.TouchpointID
	}
	o.LastModifiedTouchpointID = req.TouchpointID
	if o.LastModifiedDate == nil {
		now := s.now().UTC()
		o.LastModifiedDate = &now
	}

	sessionCreatedAt, err := s.sessionCreatedAt(ctx, req.Scope.CustomerID, o.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	if errs := s.validator.Validate(&o, sessionCreatedAt); len(errs) > 0 {
		return Outcome{}, &ValidationErrors{Fields: errs}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("outcome: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, req.Scope.InteractionID, o)
	if err != nil {
		return Outcome{}, err
	}

	msg := outbox.ChangeMessage{
		TitleMessage:     fmt.Sprintf("New Outcome record %s added for %s", created.OutcomeID, created.CustomerID),
		CustomerGUID:     created.CustomerID,
		LastModifiedDate: *created.LastModifiedDate,
		URL:              joinURL(req.BaseURL, created.OutcomeID),
		TouchpointID:     req.TouchpointID,
	}
	if err := s.changes.Enqueue(ctx, tx, outbox.TopicOutcomeCreated, msg); err != nil {
		return Outcome{}, fmt.Errorf("outcome: enqueue change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("outcome: commit tx: %w", err)
	}

	s.log.Info("outcome created", "outcomeId", created.OutcomeID, "customerId", created.CustomerID, "touchpointId", req.TouchpointID)
	return created, nil
}

// Patch merges req.Patch onto the stored document. LastModifiedDate is
// always refreshed and LastModifiedTouchpointId set to the caller.
func (s *Service) Patch(ctx context.Context, req PatchRequest) (Outcome, error) {
	if req.TouchpointID == "" {
		return Outcome{}, fmt.Errorf("outcome: missing touchpoint id")
	}
	if err := s.checkScope(ctx, req.Scope, true); err != nil {
		return Outcome{}, err
	}

	patch := req.Patch
	if patch.LastModifiedDate == nil {
		now := s.now().UTC()
		patch.LastModifiedDate = &now
	}
	patch.LastModifiedTouchpointID = req.TouchpointID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("outcome: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetJSONForUpdate(ctx, tx, req.Scope, req.OutcomeID)
	if err != nil {
		return Outcome{}, err
	}

	sessionID := patch.SessionID
	if sessionID == "" {
		sessionID, err = storedSessionID(current)
		if err != nil {
			return Outcome{}, err
		}
	}
	sessionCreatedAt, err := s.sessionCreatedAt(ctx, req.Scope.CustomerID, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if errs := s.validator.Validate(&patch, sessionCreatedAt); len(errs) > 0 {
		return Outcome{}, &ValidationErrors{Fields: errs}
	}

	merged, err := MergePatch(current, &patch)
	if err != nil {
		if errors.Is(err, ErrNothingToPatch) {
			return Outcome{}, ErrOutcomeNotFound
		}
		return Outcome{}, err
	}

	if err := s.repo.Replace(ctx, tx, req.OutcomeID, merged); err != nil {
		return Outcome{}, err
	}

	changes, err := jsonpatch.CreateMergePatch([]byte(current), []byte(merged))
	if err != nil {
		return Outcome{}, fmt.Errorf("outcome: diff documents: %w", err)
	}
	msg := outbox.ChangeMessage{
		TitleMessage:     fmt.Sprintf("Outcome record modified for %s at %s", req.OutcomeID, patch.LastModifiedDate.Format(time.RFC3339)),
		CustomerGUID:     req.Scope.CustomerID,
		LastModifiedDate: *patch.LastModifiedDate,
		URL:              req.ResourceURL,
		TouchpointID:     req.TouchpointID,
		Changes:          json.RawMessage(changes),
	}
	if err := s.changes.Enqueue(ctx, tx, outbox.TopicOutcomeUpdated, msg); err != nil {
		return Outcome{}, fmt.Errorf("outcome: enqueue change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("outcome: commit tx: %w", err)
	}

	updated, err := decodeDocument(merged)
	if err != nil {
		return Outcome{}, err
	}
	s.log.Info("outcome patched", "outcomeId", req.OutcomeID, "customerId", req.Scope.CustomerID, "touchpointId", req.TouchpointID)
	return updated, nil
}

func (s *Service) checkScope(ctx context.Context, scope Scope, write bool) error {
	ok, err := s.repo.CustomerExists(ctx, scope.CustomerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCustomerNotFound
	}

	if write {
		readOnly, err := s.repo.CustomerReadOnly(ctx, scope.CustomerID)
		if err != nil {
			return err
		}
		if readOnly {
			return ErrCustomerReadOnly
		}
	}

	ok, err = s.repo.InteractionExistsForCustomer(ctx, scope.InteractionID, scope.CustomerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInteractionNotFound
	}

	ok, err = s.repo.ActionPlanExistsForCustomer(ctx, scope.ActionPlanID, scope.InteractionID, scope.CustomerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrActionPlanNotFound
	}
	return nil
}

// sessionCreatedAt returns nil without a lookup when sessionID is empty or
// not a uuid; the validator reports the malformed id.
func (s *Service) sessionCreatedAt(ctx context.Context, customerID, sessionID string) (*time.Time, error) {
	if sessionID == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil
	}
	createdAt, err := s.repo.SessionCreatedAt(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	return &createdAt, nil
}

func storedSessionID(document string) (string, error) {
	doc, err := jsondoc.ParseString(document)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	var sessionID *string
	if _, err := doc.Get("SessionId", &sessionID); err != nil {
		return "", err
	}
	if sessionID == nil {
		return "", nil
	}
	return *sessionID, nil
}

func joinURL(base, id string) string {
	if base == "" {
		return id
	}
	return strings.TrimRight(base, "/") + "/" + id
}
