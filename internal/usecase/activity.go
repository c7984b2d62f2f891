package usecase

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/utils"
)

type ActivityUsecase struct {
	repo             ActivityRepository
	cache            UtteranceCache
	clock            Clock
	replayIdentities int
	replayUtterances int

	// held across append+invalidate and read+fill so a refill never
	// stores a list older than the log
	cacheLocks *utils.KeyedMutex
}

func NewActivityUsecase(repo ActivityRepository, cache UtteranceCache, clock Clock) *ActivityUsecase {
	return &ActivityUsecase{
		repo:             repo,
		cache:            cache,
		clock:            clock,
		replayIdentities: domain.ReplayIdentities,
		replayUtterances: domain.ReplayUtterances,
		cacheLocks:       utils.NewKeyedMutex(),
	}
}

// WithReplayLimits overrides how many identities and utterances are replayed.
func (uc *ActivityUsecase) WithReplayLimits(identities, utterances int) *ActivityUsecase {
	if identities > 0 {
		uc.replayIdentities = identities
	}
	if utterances > 0 {
		uc.replayUtterances = utterances
	}
	return uc
}

// Log stamps fields with the current time and appends them to identity's log.
func (uc *ActivityUsecase) Log(ctx context.Context, identity string, fields map[string]json.RawMessage) (domain.ActivityEntry, error) {
	ctx, span := tracer.Start(ctx, "Activity.Usecase.Log")
	defer span.End()

	entry, err := domain.NewActivityEntry(fields, uc.clock.Now().Unix())
	if err != nil {
		return domain.ActivityEntry{}, err
	}

	utterance := entry.Type == domain.ActivityAccept || entry.Type == domain.ActivityDefine
	if uc.cache != nil && utterance {
		unlock := uc.cacheLocks.Lock(identity)
		defer unlock()
	}

	err = uc.repo.Append(ctx, identity, entry)
	if err != nil {
		span.RecordError(err)
		return domain.ActivityEntry{}, errors.Wrap(err, "ActivityUsecase.Log: repo.Append failed")
	}

	if uc.cache != nil && utterance {
		uc.cache.Invalidate(ctx, identity)
	}

	return entry, nil
}

// Utterances returns identity's most recent accept/define entries, newest first.
func (uc *ActivityUsecase) Utterances(ctx context.Context, identity string) ([]domain.ActivityEntry, error) {
	ctx, span := tracer.Start(ctx, "Activity.Usecase.Utterances")
	defer span.End()

	if uc.cache != nil {
		if cached, ok := uc.cache.Get(ctx, identity); ok {
			return cached, nil
		}
		unlock := uc.cacheLocks.Lock(identity)
		defer unlock()
	}

	entries, err := uc.repo.Recent(ctx, identity, uc.replayUtterances, domain.TypeIn(domain.ActivityAccept, domain.ActivityDefine))
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "ActivityUsecase.Utterances: repo.Recent failed")
	}

	if uc.cache != nil {
		uc.cache.Set(ctx, identity, entries)
	}
	return entries, nil
}

// RecentlyActive returns the identities whose logs changed most recently.
func (uc *ActivityUsecase) RecentlyActive(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Activity.Usecase.RecentlyActive")
	defer span.End()

	identities, err := uc.repo.MostRecentlyActive(ctx, uc.replayIdentities)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "ActivityUsecase.RecentlyActive: repo.MostRecentlyActive failed")
	}
	return identities, nil
}
