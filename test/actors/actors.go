package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"outcomes/outbox"
	"outcomes/outcome"
)

// Scope is a seeded customer/interaction/action plan with its session.
type Scope struct {
	outcome.Scope
	SessionID string
	ReadOnly  bool
}

// Known collects outcome ids created during the run so patchers can target them.
type Known struct {
	mu  sync.Mutex
	ids map[string]outcome.Scope
	all []string
}

func NewKnown() *Known {
	return &Known{ids: make(map[string]outcome.Scope)}
}

func (k *Known) add(id string, scope outcome.Scope) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ids[id] = scope
	k.all = append(k.all, id)
}

func (k *Known) pick() (string, outcome.Scope, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.all) == 0 {
		return "", outcome.Scope{}, false
	}
	id := k.all[rand.Intn(len(k.all))]
	return id, k.ids[id], true
}

func (k *Known) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.all)
}

func touchpoint() string {
	return fmt.Sprintf("00000000%02d", 1+rand.Intn(20))
}

func validOutcome(sessionID string) outcome.Outcome {
	now := time.Now().UTC()
	claimed := now.Add(-time.Hour)
	effective := now.Add(-24 * time.Hour)
	typ := outcome.OutcomeType(1 + rand.Intn(5))
	group := outcome.PriorityGroupNotAPriorityCustomer
	return outcome.Outcome{
		SessionID:            sessionID,
		OutcomeType:          &typ,
		OutcomeClaimedDate:   &claimed,
		OutcomeEffectiveDate: &effective,
		ClaimedPriorityGroup: &group,
	}
}

// Creator posts valid outcomes under random scopes. Read-only customers must
// be refused; validation failures are bugs.
func Creator(ctx context.Context, svc *outcome.Service, scopes []Scope, known *Known, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		s := scopes[rand.Intn(len(scopes))]
		created, err := svc.Create(ctx, outcome.CreateRequest{
			Scope:        s.Scope,
			TouchpointID: touchpoint(),
			BaseURL:      "https://stress.local/outcomes",
			Outcome:      validOutcome(s.SessionID),
		})
		var verrs *outcome.ValidationErrors
		switch {
		case s.ReadOnly && err == nil:
			return fmt.Errorf("creator: read-only customer %s accepted a write", s.CustomerID)
		case s.ReadOnly && errors.Is(err, outcome.ErrCustomerReadOnly):
		case errors.As(err, &verrs):
			return fmt.Errorf("creator: valid outcome rejected: %v", verrs)
		case err == nil:
			known.add(created.OutcomeID, s.Scope)
		}
		// other errors come from terminated backends
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Patcher hammers known outcomes with small patches, including retractions.
func Patcher(ctx context.Context, svc *outcome.Service, known *Known, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id, scope, ok := known.pick()
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		var patch outcome.OutcomePatch
		switch rand.Intn(4) {
		case 0:
			typ := outcome.OutcomeType(1 + rand.Intn(5))
			patch.OutcomeType = &typ
		case 1:
			patch.SubcontractorID = fmt.Sprintf("sub-%d", rand.Intn(1000))
		case 2:
			patch.ClearClaimedDate()
		default:
			claimed := time.Now().UTC().Add(-time.Minute)
			group := outcome.PriorityGroupLongTermUnemployed
			patch.OutcomeClaimedDate = &claimed
			patch.ClaimedPriorityGroup = &group
		}

		_, err := svc.Patch(ctx, outcome.PatchRequest{
			Scope:        scope,
			OutcomeID:    id,
			TouchpointID: touchpoint(),
			ResourceURL:  "https://stress.local/outcomes/" + id,
			Patch:        patch,
		})
		var verrs *outcome.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("patcher: valid patch rejected: %v", verrs)
		}
		if errors.Is(err, outcome.ErrOutcomeNotFound) {
			return fmt.Errorf("patcher: created outcome %s vanished", id)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Reader lists outcomes under every scope.
func Reader(ctx context.Context, svc *outcome.Service, scopes []Scope, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		s := scopes[rand.Intn(len(scopes))]
		list, err := svc.List(ctx, s.Scope)
		if err == nil {
			for _, o := range list {
				if o.CustomerID != s.CustomerID || o.ActionPlanID != s.ActionPlanID {
					return fmt.Errorf("reader: outcome %s listed under the wrong scope", o.OutcomeID)
				}
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// flakyPublisher fails one publish in ten.
type flakyPublisher struct{}

func (flakyPublisher) Publish(context.Context, outbox.Message) error {
	if rand.Intn(10) == 0 {
		return errors.New("simulated queue outage")
	}
	return nil
}

// Forwarder runs the outbox forwarder against a publisher that fails at random.
func Forwarder(ctx context.Context, pool *pgxpool.Pool, maxAttempts int, stop <-chan struct{}) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	fwd := outbox.NewForwarder(outbox.NewStore(pool), flakyPublisher{}, nil, outbox.ForwarderOptions{
		Interval:    100 * time.Millisecond,
		Batch:       10,
		MaxAttempts: maxAttempts,
	})
	return fwd.Run(runCtx)
}
