package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/httpx"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// ErrTaskNotShown is returned when the oracle does not confirm that the photo
// shows the mission's task, or could not be reached.
var ErrTaskNotShown = fmt.Errorf("%w: photo does not show the mission task", model.ErrInvalidArgument)

// Completer pays out photo-verified missions, once per user and mission.
type Completer struct {
	store  store.Store
	oracle ai.Oracle
	clock  clock.Clock
	log    *slog.Logger
}

func NewCompleter(st store.Store, oracle ai.Oracle, clk clock.Clock, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{store: st, oracle: oracle, clock: clk, log: logger}
}

// Completion is what a completed mission earned.
type Completion struct {
	MissionID   string          `json:"mission_id"`
	Todo        string          `json:"todo"`
	Reward      decimal.Decimal `json:"credits_earned"`
	Balance     decimal.Decimal `json:"new_balance"`
	CompletedAt time.Time       `json:"completed_at"`
}

// MissionStatus is a mission as seen by one user.
type MissionStatus struct {
	model.Mission
	Completed bool `json:"completed"`
}

// Missions lists every mission, marking the ones userID has completed. An
// empty userID marks none.
func (c *Completer) Missions(ctx context.Context, userID string) ([]MissionStatus, error) {
	missions, err := c.store.ListMissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MissionStatus, 0, len(missions))
	for _, m := range missions {
		st := MissionStatus{Mission: m}
		if userID != "" {
			_, err := c.store.GetUserMission(ctx, userID, m.ID)
			switch {
			case err == nil:
				st.Completed = true
			case !errors.Is(err, model.ErrNotFound):
				return nil, err
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Complete checks the photo against the mission's task and, if it matches,
// records the completion and credits the mission's reward in one transaction.
// A mission already completed by the user is rejected before the oracle is
// asked; the transaction checks again so a concurrent completion cannot pay
// twice.
func (c *Completer) Complete(ctx context.Context, userID, missionID string, image []byte) (Completion, error) {
	if len(image) == 0 {
		return Completion{}, fmt.Errorf("%w: image is required", model.ErrInvalidArgument)
	}
	m, err := c.store.GetMission(ctx, missionID)
	if err != nil {
		return Completion{}, err
	}
	if _, err := c.store.GetAccount(ctx, userID); err != nil {
		return Completion{}, err
	}
	if err := c.notCompleted(ctx, c.store, userID, missionID); err != nil {
		return Completion{}, err
	}

	ok, err := c.oracle.Verify(ctx, image, m.Todo)
	if err != nil {
		metrics.MissionsTotal.WithLabelValues("error").Inc()
		c.log.Warn("mission photo verification failed", "user", userID, "mission_id", missionID, "err", err)
		return Completion{}, ErrTaskNotShown
	}
	if !ok {
		metrics.MissionsTotal.WithLabelValues("rejected").Inc()
		return Completion{}, ErrTaskNotShown
	}

	now := c.clock.Now()
	res := Completion{MissionID: m.ID, Todo: m.Todo, Reward: m.Credits, CompletedAt: now}
	err = c.store.InTx(ctx, func(tx store.Repository) error {
		if err := c.notCompleted(ctx, tx, userID, missionID); err != nil {
			return err
		}
		if err := tx.InsertUserMission(ctx, &model.UserMission{
			UserID:      userID,
			MissionID:   missionID,
			Credits:     m.Credits,
			CompletedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.Credit(ctx, userID, m.Credits); err != nil {
			return err
		}
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		res.Balance = acct.Balance
		return nil
	})
	if err != nil {
		return Completion{}, err
	}

	metrics.MissionsTotal.WithLabelValues("accepted").Inc()
	c.log.Info("mission completed",
		"user", userID,
		"mission_id", missionID,
		"reward", m.Credits.String(),
	)
	return res, nil
}

func (c *Completer) notCompleted(ctx context.Context, r store.Reader, userID, missionID string) error {
	_, err := r.GetUserMission(ctx, userID, missionID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: user %s already completed mission %s", model.ErrInvalidState, userID, missionID)
	case errors.Is(err, model.ErrNotFound):
		return nil
	default:
		return err
	}
}

// CompleteRequest is the JSON body for POST /missions/{missionID}/complete.
// Image is base64 encoded.
type CompleteRequest struct {
	UserID string `json:"user_id"`
	Image  []byte `json:"image"`
}

// Routes mounts the mission endpoints on r. GET /missions takes an optional
// user_id query parameter.
func (c *Completer) Routes(r chi.Router) {
	r.Get("/missions", c.handleList)
	r.Post("/missions/{missionID}/complete", c.handleComplete)
}

func (c *Completer) handleList(w http.ResponseWriter, r *http.Request) {
	missions, err := c.Missions(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, missions)
}

func (c *Completer) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	res, err := c.Complete(r.Context(), req.UserID, chi.URLParam(r, "missionID"), req.Image)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}
