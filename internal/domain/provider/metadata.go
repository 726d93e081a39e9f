package provider

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	domainerrors "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
)

// Metadata keys attached to every checkout session.
const (
	MetaUserID        = "user_id"
	MetaOrderID       = "order_id"
	MetaCourseIDs     = "course_ids"
	MetaCouponCode    = "coupon_code"
	MetaIsWalletTopUp = "is_wallet_top_up"
)

// Metadata is the correlation data round-tripped through the gateway. For a
// wallet top-up, OrderID carries the top-up transaction id.
type Metadata struct {
	UserID        uuid.UUID
	OrderID       uuid.UUID
	CourseIDs     []uuid.UUID
	CouponCode    string
	IsWalletTopUp bool
}

// Map encodes the metadata for a gateway request.
func (m Metadata) Map() map[string]string {
	out := map[string]string{
		MetaUserID:        m.UserID.String(),
		MetaOrderID:       m.OrderID.String(),
		MetaIsWalletTopUp: strconv.FormatBool(m.IsWalletTopUp),
	}
	if len(m.CourseIDs) > 0 {
		ids := make([]string, len(m.CourseIDs))
		for i, id := range m.CourseIDs {
			ids[i] = id.String()
		}
		out[MetaCourseIDs] = strings.Join(ids, ",")
	}
	if m.CouponCode != "" {
		out[MetaCouponCode] = m.CouponCode
	}
	return out
}

// ParseMetadata decodes gateway metadata. order_id and user_id are required.
func ParseMetadata(raw map[string]string) (*Metadata, error) {
	if raw == nil {
		return nil, domainerrors.NewValidationError("webhook metadata is missing")
	}

	orderRaw := strings.TrimSpace(raw[MetaOrderID])
	if orderRaw == "" {
		return nil, domainerrors.NewValidationError("webhook metadata has no %s", MetaOrderID)
	}
	orderID, err := uuid.Parse(orderRaw)
	if err != nil {
		return nil, domainerrors.NewValidationError("invalid %s %q", MetaOrderID, orderRaw)
	}

	userRaw := strings.TrimSpace(raw[MetaUserID])
	if userRaw == "" {
		return nil, domainerrors.NewValidationError("webhook metadata has no %s", MetaUserID)
	}
	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return nil, domainerrors.NewValidationError("invalid %s %q", MetaUserID, userRaw)
	}

	meta := &Metadata{
		UserID:     userID,
		OrderID:    orderID,
		CouponCode: strings.TrimSpace(raw[MetaCouponCode]),
	}

	if v := strings.TrimSpace(raw[MetaIsWalletTopUp]); v != "" {
		topUp, err := strconv.ParseBool(v)
		if err != nil {
			return nil, domainerrors.NewValidationError("invalid %s %q", MetaIsWalletTopUp, v)
		}
		meta.IsWalletTopUp = topUp
	}

	if v := strings.TrimSpace(raw[MetaCourseIDs]); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, domainerrors.NewValidationError("invalid course id %q", part)
			}
			meta.CourseIDs = append(meta.CourseIDs, id)
		}
	}

	return meta, nil
}
