// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/utils"
)

// CreateParty creates a party led by the member. A connection is in at most one party,
// so the member leaves any previous one.
func (r *Registry) CreateParty(rootScope *envelope.Scope, roomID string, leader models.PartyMember) *models.Party {
	scope := rootScope.NewChildScope("Registry.CreateParty")
	defer scope.Finish()

	r.leaveCurrentParty(scope, leader.ConnID)
	party := models.NewParty(utils.GenerateUUID(), roomID, leader, r.clock())
	r.parties[party.ID] = party
	r.partyOf[leader.ConnID] = party.ID

	scope.Log.WithField("partyID", party.ID).WithField("roomID", roomID).Info("party created")
	return party
}

func (r *Registry) JoinParty(rootScope *envelope.Scope, partyID string, member models.PartyMember) (*models.Party, error) {
	scope := rootScope.NewChildScope("Registry.JoinParty")
	defer scope.Finish()

	party, ok := r.parties[partyID]
	if !ok {
		return nil, models.ErrPartyNotFound
	}
	if r.partyOf[member.ConnID] != partyID {
		r.leaveCurrentParty(scope, member.ConnID)
	}
	member.JoinedAt = r.clock()
	member.Ready = false
	party.Members[member.ConnID] = &member
	r.partyOf[member.ConnID] = partyID
	return party, nil
}

// UpdatePartyMember changes a member's flags. Members may change their own flags; only the leader
// may change the team or observer flag of others. Nobody can mark another member ready.
func (r *Registry) UpdatePartyMember(rootScope *envelope.Scope, partyID, actorConnID string, update models.PartyMember) (*models.Party, error) {
	party, ok := r.parties[partyID]
	if !ok {
		return nil, models.ErrPartyNotFound
	}
	member, ok := party.Members[update.ConnID]
	if !ok {
		return nil, models.ErrPartyNotFound
	}
	if actorConnID != update.ConnID {
		if actorConnID != party.LeaderConnID {
			return nil, models.ErrNotPartyLeader
		}
		member.Team = update.Team
		member.IsObserver = update.IsObserver
		return party, nil
	}

	member.Ready = update.Ready
	member.Team = update.Team
	member.IsObserver = update.IsObserver
	if update.Name != "" {
		member.Name = update.Name
	}
	return party, nil
}

// LeaveParty removes the member. The party is dissolved once empty, and a departing leader hands
// leadership to the member waiting longest. It returns the party if it still exists.
func (r *Registry) LeaveParty(rootScope *envelope.Scope, partyID, connID string) (*models.Party, bool) {
	party, ok := r.parties[partyID]
	if !ok {
		return nil, false
	}
	if _, member := party.Members[connID]; !member {
		return party, true
	}
	delete(party.Members, connID)
	delete(r.partyOf, connID)

	if len(party.Members) == 0 {
		delete(r.parties, partyID)
		rootScope.Log.WithField("partyID", partyID).Info("party dissolved")
		return nil, false
	}
	if party.LeaderConnID == connID {
		party.LeaderConnID = party.SortedMembers()[0].ConnID
		rootScope.Log.WithField("partyID", partyID).WithField("leader", party.LeaderConnID).Debug("party leadership transferred")
	}
	return party, true
}

// ReadyParty returns the members to start a game with once every player is ready, or nil.
// Starting bumps the party version and resets the ready flags, so the party can play again.
func (r *Registry) ReadyParty(rootScope *envelope.Scope, partyID string) []models.PartyMember {
	party, ok := r.parties[partyID]
	if !ok || !party.IsReady() {
		return nil
	}
	members := party.SortedMembers()
	for _, m := range party.Members {
		m.Ready = false
	}
	party.Version++
	return members
}

func (r *Registry) Party(partyID string) (*models.Party, bool) {
	party, ok := r.parties[partyID]
	return party, ok
}

func (r *Registry) PartyOf(connID string) (string, bool) {
	partyID, ok := r.partyOf[connID]
	return partyID, ok
}

func (r *Registry) leaveCurrentParty(scope *envelope.Scope, connID string) {
	if partyID, ok := r.partyOf[connID]; ok {
		r.LeaveParty(scope, partyID, connID)
	}
}
