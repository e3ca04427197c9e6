package services

import (
	"context"

	"mobilechat/internal/imtypes"
	"mobilechat/internal/subscription"
)

// LiveQueries opens subscriptions on behalf of a connected user. Users only
// see their own friend lists and the logs of rooms they belong to.
type LiveQueries struct {
	graph    FriendGraphService
	rooms    RoomRegistry
	messages MessageLog
}

// NewLiveQueries creates a LiveQueries.
func NewLiveQueries(graph FriendGraphService, rooms RoomRegistry, messages MessageLog) *LiveQueries {
	return &LiveQueries{graph: graph, rooms: rooms, messages: messages}
}

// Subscribe opens the live query named by frame for userID.
func (q *LiveQueries) Subscribe(ctx context.Context, userID string, frame imtypes.ClientFrame, fn subscription.Handler) (*subscription.Subscription, error) {
	switch frame.Topic {
	case imtypes.TopicRooms:
		return q.rooms.SubscribeRoomList(ctx, fn)
	case imtypes.TopicMessages:
		if frame.RoomID == "" {
			return nil, ErrRoomIDRequired
		}
		if _, err := q.rooms.GetRoom(ctx, frame.RoomID); err != nil {
			return nil, err
		}
		member, err := q.rooms.IsMember(ctx, frame.RoomID, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotRoomMember
		}
		return q.messages.Subscribe(ctx, frame.RoomID, fn)
	case imtypes.TopicIncoming:
		return q.graph.SubscribeIncoming(ctx, userID, fn)
	case imtypes.TopicOutgoing:
		return q.graph.SubscribeOutgoing(ctx, userID, fn)
	case imtypes.TopicFriends:
		return q.graph.SubscribeFriends(ctx, userID, fn)
	default:
		return nil, ErrUnknownTopic
	}
}

// TopicFor returns the hub topic frame refers to, used to match unsubscribe
// requests against open subscriptions.
func TopicFor(userID string, frame imtypes.ClientFrame) (subscription.Topic, error) {
	switch frame.Topic {
	case imtypes.TopicRooms:
		return subscription.RoomsTopic(), nil
	case imtypes.TopicMessages:
		if frame.RoomID == "" {
			return "", ErrRoomIDRequired
		}
		return subscription.MessagesTopic(frame.RoomID), nil
	case imtypes.TopicIncoming:
		return subscription.IncomingTopic(userID), nil
	case imtypes.TopicOutgoing:
		return subscription.OutgoingTopic(userID), nil
	case imtypes.TopicFriends:
		return subscription.FriendsTopic(userID), nil
	default:
		return "", ErrUnknownTopic
	}
}

// TopicFor is the method form of TopicFor.
func (q *LiveQueries) TopicFor(userID string, frame imtypes.ClientFrame) (subscription.Topic, error) {
	return TopicFor(userID, frame)
}
