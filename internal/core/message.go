package core

import (
	"github.com/samber/lo"

	"github.com/sonicspectrum/msghub/internal/proto"
	"github.com/sonicspectrum/msghub/internal/store"
)

// ToOutbound maps a persisted message to its wire form.
func ToOutbound(msg *store.Message) proto.Outbound {
	return proto.Outbound{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		Content:     msg.Content,
		CreatedTime: proto.FormatTime(msg.CreatedAt),
		IsRead:      msg.IsRead,
	}
}

// ToOutboundList maps a conversation listing, preserving order.
func ToOutboundList(msgs []*store.Message) []proto.Outbound {
	return lo.Map(msgs, func(m *store.Message, _ int) proto.Outbound {
		return ToOutbound(m)
	})
}
