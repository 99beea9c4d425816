package messaging

import (
	"github.com/google/uuid"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
)

// CreateGroup creates a group with the creator always included in the member
// list. Each member is notified through their personal room so clients learn
// about the new conversation without a refetch.
func (s *Service) CreateGroup(creatorID, name string, memberIDs []string) (models.Group, error) {
	if name == "" {
		return models.Group{}, apperr.Validation("group name is required")
	}

	seen := map[string]bool{creatorID: true}
	members := []string{creatorID}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		if _, err := s.store.GetUser(id); err != nil {
			return models.Group{}, err
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return models.Group{}, apperr.Validation("a group needs at least one member besides the creator")
	}

	group := models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		CreatorID: creatorID,
		Members:   members,
		CreatedAt: s.now().Unix(),
	}
	if err := s.store.UpsertGroup(group); err != nil {
		return models.Group{}, apperr.Internal(err)
	}

	payload := models.GroupCreatedPayload{Group: group, CreatorID: creatorID}
	for _, member := range members {
		s.broadcaster.Publish(rooms.UserRoom(member), models.EventGroupCreated, payload)
	}
	return group, nil
}

// LeaveGroup removes the caller from the group's member list. The group and
// its history survive for the remaining members; the leaver's unread counts
// no longer include it.
func (s *Service) LeaveGroup(userID, groupID string) error {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if !group.HasMember(userID) {
		return apperr.Conflict("not a member of group %s", groupID)
	}

	remaining := group.Members[:0:0]
	for _, member := range group.Members {
		if member != userID {
			remaining = append(remaining, member)
		}
	}
	group.Members = remaining

	if err := s.store.UpsertGroup(group); err != nil {
		return apperr.Internal(err)
	}
	s.invalidateUnread(userID)
	return nil
}

// Groups lists the groups the user is currently a member of.
func (s *Service) Groups(userID string) ([]models.Group, error) {
	groups, err := s.store.ListGroupsFor(userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return groups, nil
}
