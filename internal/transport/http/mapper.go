package http

import (
	"encoding/json"

	"github.com/izbachat/izba/internal/core"
	"github.com/izbachat/izba/internal/proto"
	"github.com/izbachat/izba/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeCheckName, proto.InboundTypeClaimName,
		proto.InboundTypeRemember, proto.InboundTypeLogout:
		var name proto.NameData
		if err := json.Unmarshal(inbound.Data, &name); err != nil {
			return nil, nil, err
		}
		kind := map[string]core.CommandKind{
			proto.InboundTypeCheckName: core.CommandCheckName,
			proto.InboundTypeClaimName: core.CommandClaimName,
			proto.InboundTypeRemember:  core.CommandRememberName,
			proto.InboundTypeLogout:    core.CommandLogout,
		}[inbound.Type]
		if kind != core.CommandLogout && name.Name == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "name is required"}, nil
		}
		return &core.Command{Kind: kind, Name: name.Name}, nil, nil

	case proto.InboundTypeListRooms:
		var list proto.ListRoomsData
		if err := json.Unmarshal(inbound.Data, &list); err != nil {
			return nil, nil, err
		}
		visibility := store.Visibility(list.Visibility)
		if !visibility.Valid() {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown visibility"}, nil
		}
		return &core.Command{Kind: core.CommandListRooms, Visibility: visibility}, nil, nil

	case proto.InboundTypeCreateRoom:
		var create proto.CreateRoomData
		if err := json.Unmarshal(inbound.Data, &create); err != nil {
			return nil, nil, err
		}
		if create.Name == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room name is required"}, nil
		}
		visibility := store.Visibility(create.Visibility)
		if !visibility.Valid() {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown visibility"}, nil
		}
		return &core.Command{Kind: core.CommandCreateRoom, Name: create.Name, Visibility: visibility}, nil, nil

	case proto.InboundTypeOpenRoom:
		var open proto.OpenRoomData
		if err := json.Unmarshal(inbound.Data, &open); err != nil {
			return nil, nil, err
		}
		if open.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{Kind: core.CommandOpenRoom, Room: open.Room}, nil, nil

	case proto.InboundTypeAddMember:
		var add proto.AddMemberData
		if err := json.Unmarshal(inbound.Data, &add); err != nil {
			return nil, nil, err
		}
		if add.Room == "" || add.User == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room and user are required"}, nil
		}
		return &core.Command{Kind: core.CommandAddMember, Room: add.Room, Member: add.User}, nil, nil

	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Room: msg.Room,
			Message: core.Message{
				Room:      msg.Room,
				Content:   msg.Content,
				Timestamp: msg.TS,
			},
		}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNameCheck:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameCheck,
			Data:  proto.EventNameCheckData{Name: event.Name, Available: event.Available},
		}
	case core.EventIdentity:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventIdentity,
			Data:  proto.EventIdentityData{Name: event.Name},
		}
	case core.EventIdentityRejected:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventIdentityRejected,
			Data:  proto.EventIdentityData{Name: event.Name},
		}
	case core.EventLoggedOut:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventLoggedOut,
		}
	case core.EventRoomList:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomList,
			Data: proto.EventRoomListData{
				Visibility: string(event.Visibility),
				Rooms:      event.Rooms,
			},
		}
	case core.EventRoomCreated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomCreated,
			Data: proto.EventRoomCreatedData{
				Name:       event.Room,
				Visibility: string(event.Visibility),
			},
		}
	case core.EventRoomCreateFailed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomCreateFailed,
		}
	case core.EventRoomOpened:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, eventMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomOpened,
			Data: proto.EventRoomOpenedData{
				Room:       event.Room,
				Visibility: string(event.Visibility),
				Messages:   messages,
				Members:    event.Members,
			},
		}
	case core.EventRoomMissing:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomMissing,
			Data:  proto.EventRoomMissingData{Room: event.Room},
		}
	case core.EventMemberAdded:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMemberAdded,
			Data: proto.EventMemberAddedData{
				Room:    event.Room,
				Members: event.Members,
			},
		}
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data:  eventMessage(event.Message),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventMessage(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:      msg.ID,
		Room:    msg.Room,
		User:    msg.From,
		Content: msg.Content,
		TS:      msg.Timestamp,
	}
}
