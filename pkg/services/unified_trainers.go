package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/repositories"
)

// TrainerView is one aggregator result: the unified trainer list for a client
// plus counts derived from it.
type TrainerView struct {
	Trainers  []models.UnifiedTrainer `json:"trainers"`
	Counts    models.TrainerCounts    `json:"counts"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// UnifiedTrainerService composes trainer profiles, engagement stages,
// waitlist membership, conversation and discovery-call flags, and
// availability into presentation-ready records. Results are cached per
// client; Invalidate is the single entry point that both the freshness
// window and the sync coordinator use to force a recompute.
type UnifiedTrainerService interface {
	// Fetch returns the client's unified trainer view, recomputing it when
	// the cached copy is older than the freshness window.
	Fetch(ctx context.Context, clientID uuid.UUID) (*TrainerView, error)

	// Invalidate drops the cached view for a client.
	Invalidate(clientID uuid.UUID)

	// SaveTrainer moves a browsing trainer to saved.
	SaveTrainer(ctx context.Context, clientID, trainerID uuid.UUID) error
	// ShortlistTrainer moves a saved trainer to shortlisted, enforcing the
	// shortlist cap locally before any write.
	ShortlistTrainer(ctx context.Context, clientID, trainerID uuid.UUID) error
	// RemoveFromShortlist moves a shortlisted trainer back to saved.
	RemoveFromShortlist(ctx context.Context, clientID, trainerID uuid.UUID) error
	// JoinWaitlist adds the client to the trainer's waitlist.
	JoinWaitlist(ctx context.Context, clientID, trainerID uuid.UUID) error
	// LeaveWaitlist removes the client from the trainer's waitlist.
	LeaveWaitlist(ctx context.Context, clientID, trainerID uuid.UUID) error
}

type unifiedTrainerService struct {
	engagements   repositories.EngagementRepository
	trainers      repositories.TrainerRepository
	waitlist      repositories.WaitlistRepository
	conversations repositories.ConversationRepository
	calls         repositories.DiscoveryCallRepository
	cacheTTL      time.Duration
	shortlistCap  int
	logger        *zap.Logger
	now           func() time.Time

	mu    sync.Mutex
	cache map[uuid.UUID]*TrainerView
}

var _ UnifiedTrainerService = (*unifiedTrainerService)(nil)

// NewUnifiedTrainerService creates a new trainer aggregator.
func NewUnifiedTrainerService(
	engagements repositories.EngagementRepository,
	trainers repositories.TrainerRepository,
	waitlist repositories.WaitlistRepository,
	conversations repositories.ConversationRepository,
	calls repositories.DiscoveryCallRepository,
	cacheTTL time.Duration,
	shortlistCap int,
	logger *zap.Logger,
) UnifiedTrainerService {
	return &unifiedTrainerService{
		engagements:   engagements,
		trainers:      trainers,
		waitlist:      waitlist,
		conversations: conversations,
		calls:         calls,
		cacheTTL:      cacheTTL,
		shortlistCap:  shortlistCap,
		logger:        logger.Named("unified-trainer-service"),
		now:           time.Now,
		cache:         make(map[uuid.UUID]*TrainerView),
	}
}

func (s *unifiedTrainerService) Fetch(ctx context.Context, clientID uuid.UUID) (*TrainerView, error) {
	s.mu.Lock()
	if cached, ok := s.cache[clientID]; ok && s.now().Sub(cached.FetchedAt) < s.cacheTTL {
		view := cloneView(cached)
		s.mu.Unlock()
		return view, nil
	}
	s.mu.Unlock()

	view, err := s.compute(ctx, clientID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[clientID] = view
	s.mu.Unlock()
	return cloneView(view), nil
}

func (s *unifiedTrainerService) Invalidate(clientID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, clientID)
	s.mu.Unlock()
}

// compute runs the full aggregation: relationship rows first, then profile
// data for exactly the referenced trainer set, then per-trainer derivation.
func (s *unifiedTrainerService) compute(ctx context.Context, clientID uuid.UUID) (*TrainerView, error) {
	var (
		engagements   []*models.Engagement
		waitlistRows  []*models.WaitlistEntry
		conversations []*models.Conversation
		calls         []*models.DiscoveryCall
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		engagements, err = s.engagements.ListByClient(gctx, clientID)
		return err
	})
	g.Go(func() error {
		var err error
		waitlistRows, err = s.waitlist.ListByClient(gctx, clientID)
		return err
	})
	g.Go(func() error {
		var err error
		conversations, err = s.conversations.ListActiveByClient(gctx, clientID)
		return err
	})
	g.Go(func() error {
		var err error
		calls, err = s.calls.ListActiveByClient(gctx, clientID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch relationship data: %w", err)
	}

	// Only trainers referenced by an engagement or a waitlist row are shown.
	engagementByTrainer := make(map[uuid.UUID]*models.Engagement, len(engagements))
	for _, e := range engagements {
		engagementByTrainer[e.TrainerID] = e
	}
	onWaitlist := make(map[uuid.UUID]bool, len(waitlistRows))
	for _, w := range waitlistRows {
		onWaitlist[w.TrainerID] = true
	}
	ids := make([]uuid.UUID, 0, len(engagementByTrainer)+len(onWaitlist))
	seen := make(map[uuid.UUID]bool, len(engagementByTrainer)+len(onWaitlist))
	for id := range engagementByTrainer {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range onWaitlist {
		if !seen[id] {
			ids = append(ids, id)
		}
	}

	hasConversation := make(map[uuid.UUID]bool, len(conversations))
	for _, c := range conversations {
		if c.IsActive() {
			hasConversation[c.TrainerID] = true
		}
	}
	hasCall := make(map[uuid.UUID]bool, len(calls))
	for _, c := range calls {
		if c.Status.IsActive() {
			hasCall[c.TrainerID] = true
		}
	}

	var (
		profiles     []*models.Trainer
		settings     map[uuid.UUID]*models.DiscoveryCallSettings
		availability map[uuid.UUID]*models.TrainerAvailability
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = s.trainers.ListByIDs(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		settings, err = s.trainers.ListDiscoverySettings(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		availability, err = s.trainers.ListAvailability(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch trainer data: %w", err)
	}

	unified := make([]models.UnifiedTrainer, 0, len(profiles))
	for _, trainer := range profiles {
		engagement := engagementByTrainer[trainer.ID]
		status, label := deriveStatus(engagement, onWaitlist[trainer.ID], hasConversation[trainer.ID], hasCall[trainer.ID])
		unified = append(unified, models.UnifiedTrainer{
			Trainer:           *trainer,
			Engagement:        engagement,
			Status:            status,
			StatusLabel:       label,
			StatusColor:       status.Color(),
			OnWaitlist:        onWaitlist[trainer.ID],
			HasConversation:   hasConversation[trainer.ID],
			HasDiscoveryCall:  hasCall[trainer.ID],
			DiscoverySettings: settings[trainer.ID],
			Availability:      availability[trainer.ID],
		})
	}
	sort.Slice(unified, func(i, j int) bool {
		return unified[i].Trainer.FullName < unified[j].Trainer.FullName
	})

	return &TrainerView{
		Trainers:  unified,
		Counts:    models.CountTrainers(unified),
		FetchedAt: s.now(),
	}, nil
}

// deriveStatus applies the status priority: an explicit engagement stage wins
// over waitlist membership, which wins over the browsing default. Inputs are
// never mutated, so the derivation is repeatable over the same snapshot.
func deriveStatus(e *models.Engagement, onWaitlist, hasConversation, hasCall bool) (models.TrainerStatus, string) {
	if e != nil {
		switch e.Stage {
		case models.StageLiked:
			return models.TrainerStatusSaved, models.TrainerStatusSaved.Label()
		case models.StageShortlisted:
			if hasCall || hasConversation {
				return models.TrainerStatusDiscovery, models.TrainerStatusDiscovery.Label()
			}
			return models.TrainerStatusShortlisted, models.TrainerStatusShortlisted.Label()
		case models.StageGettingToKnowCoach, models.StageDiscoveryInProgress, models.StageDiscoveryCompleted:
			return models.TrainerStatusDiscovery, models.TrainerStatusDiscovery.Label()
		case models.StageAgreed:
			return models.TrainerStatusDiscovery, models.AgreedLabel
		case models.StageDeclined:
			return models.TrainerStatusDeclined, models.TrainerStatusDeclined.Label()
		}
	}
	if onWaitlist {
		return models.TrainerStatusWaitlist, models.TrainerStatusWaitlist.Label()
	}
	return models.TrainerStatusBrowsing, models.TrainerStatusBrowsing.Label()
}

func (s *unifiedTrainerService) SaveTrainer(ctx context.Context, clientID, trainerID uuid.UUID) error {
	view, err := s.Fetch(ctx, clientID)
	if err != nil {
		return err
	}
	for _, t := range view.Trainers {
		if t.Trainer.ID == trainerID && t.Engagement != nil && t.Engagement.Stage != models.StageBrowsing {
			return apperrors.ErrAlreadySaved
		}
	}
	return s.mutate(ctx, clientID, trainerID, models.TrainerStatusSaved, func(ctx context.Context) error {
		_, err := s.engagements.UpsertStage(ctx, clientID, trainerID, models.StageLiked)
		return err
	})
}

func (s *unifiedTrainerService) ShortlistTrainer(ctx context.Context, clientID, trainerID uuid.UUID) error {
	view, err := s.Fetch(ctx, clientID)
	if err != nil {
		return err
	}
	active := 0
	for _, t := range view.Trainers {
		if t.Trainer.ID == trainerID {
			continue
		}
		if t.Status == models.TrainerStatusShortlisted || t.Status == models.TrainerStatusDiscovery {
			active++
		}
	}
	if active >= s.shortlistCap {
		return apperrors.ErrShortlistLimitReached
	}
	return s.mutate(ctx, clientID, trainerID, models.TrainerStatusShortlisted, func(ctx context.Context) error {
		_, err := s.engagements.UpsertStage(ctx, clientID, trainerID, models.StageShortlisted)
		return err
	})
}

func (s *unifiedTrainerService) RemoveFromShortlist(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return s.mutate(ctx, clientID, trainerID, models.TrainerStatusSaved, func(ctx context.Context) error {
		_, err := s.engagements.UpsertStage(ctx, clientID, trainerID, models.StageLiked)
		return err
	})
}

func (s *unifiedTrainerService) JoinWaitlist(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return s.mutate(ctx, clientID, trainerID, models.TrainerStatusWaitlist, func(ctx context.Context) error {
		return s.waitlist.Join(ctx, clientID, trainerID)
	})
}

func (s *unifiedTrainerService) LeaveWaitlist(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return s.mutate(ctx, clientID, trainerID, models.TrainerStatusBrowsing, func(ctx context.Context) error {
		return s.waitlist.Leave(ctx, clientID, trainerID)
	})
}

// mutate runs one optimistic cache mutation: patch the cached view and its
// counts, commit the write, restore the snapshot on failure. A confirmed
// write invalidates the cache so the next read reconciles against the store.
func (s *unifiedTrainerService) mutate(ctx context.Context, clientID, trainerID uuid.UUID, target models.TrainerStatus, commit func(context.Context) error) error {
	s.mu.Lock()
	cached := s.cache[clientID]
	var snapshot *TrainerView
	if cached != nil {
		snapshot = cloneView(cached)
	}
	s.mu.Unlock()

	err := optimistic(ctx, snapshot,
		func() {
			s.mu.Lock()
			if view := s.cache[clientID]; view != nil {
				patchStatus(view, trainerID, target)
			}
			s.mu.Unlock()
		},
		commit,
		func(snap *TrainerView) {
			s.mu.Lock()
			if snap != nil {
				s.cache[clientID] = snap
			} else {
				delete(s.cache, clientID)
			}
			s.mu.Unlock()
			s.logger.Warn("trainer mutation rolled back",
				zap.String("client_id", clientID.String()),
				zap.String("trainer_id", trainerID.String()),
				zap.String("target_status", string(target)))
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update trainer status: %w", err)
	}

	s.Invalidate(clientID)
	return nil
}

// patchStatus rewrites one entry's derived status in place and recomputes the
// counts; callers hold s.mu.
func patchStatus(view *TrainerView, trainerID uuid.UUID, target models.TrainerStatus) {
	for i := range view.Trainers {
		if view.Trainers[i].Trainer.ID != trainerID {
			continue
		}
		view.Trainers[i].Status = target
		view.Trainers[i].StatusLabel = target.Label()
		view.Trainers[i].StatusColor = target.Color()
		switch target {
		case models.TrainerStatusWaitlist:
			view.Trainers[i].OnWaitlist = true
		case models.TrainerStatusBrowsing:
			view.Trainers[i].OnWaitlist = false
		}
		break
	}
	view.Counts = models.CountTrainers(view.Trainers)
}

func cloneView(view *TrainerView) *TrainerView {
	out := &TrainerView{
		Trainers:  make([]models.UnifiedTrainer, len(view.Trainers)),
		Counts:    view.Counts,
		FetchedAt: view.FetchedAt,
	}
	copy(out.Trainers, view.Trainers)
	return out
}
