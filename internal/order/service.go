package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cediman-be/internal/events"
	"cediman-be/internal/logger"
	"cediman-be/internal/notification"
	"cediman-be/internal/payment"
	"cediman-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	ListUserOrders(ctx context.Context, userID string) ([]*Order, error)
	CheckReference(ctx context.Context, reference string) (string, bool, error)
	AttachPaymentReference(ctx context.Context, orderID, reference string) error
	BackfillUserID(ctx context.Context, email, userID string) (int64, error)

	VerifyAndConfirmPayment(ctx context.Context, orderID string) error
	UpdateStatus(ctx context.Context, input UpdateStatusInput) error
	ConfirmDelivery(ctx context.Context, orderID, requestingUserID, email string) error

	InitializePayment(ctx context.Context, email string, amount decimal.Decimal, metadata map[string]any) (*payment.InitializeResult, error)
	VerifyPayment(ctx context.Context, reference string) (*payment.Verification, error)
}

type Options struct {
	// AppBaseURL prefixes customer tracking links, e.g. https://cediman.com.
	AppBaseURL string
}

type Deps struct {
	Repo      Repository
	Gateway   payment.Gateway
	Notifier  notification.Dispatcher
	Publisher events.Publisher
	Options   Options
}

type service struct {
	repo      Repository
	gateway   payment.Gateway
	notifier  notification.Dispatcher
	publisher events.Publisher
	opts      Options
	locks     *keyedMutex
	now       func() time.Time
	newID     func() string
}

// maxIDAttempts bounds order id regeneration after primary key collisions.
const maxIDAttempts = 3

func NewService(deps Deps) Service {
	s := &service{
		repo:      deps.Repo,
		gateway:   deps.Gateway,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		opts:      deps.Options,
		locks:     newKeyedMutex(),
		now:       time.Now,
		newID:     utils.GenerateOrderID,
	}
	if s.notifier == nil {
		s.notifier = notification.Discard{}
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	s.opts.AppBaseURL = strings.TrimRight(s.opts.AppBaseURL, "/")
	return s
}

func (s *service) trackingURL(orderID string) string {
	return s.opts.AppBaseURL + "/track/" + orderID
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Int("item_count", len(input.Items)),
	)

	if len(input.Items) == 0 {
		return nil, false, badRequest("order has no items")
	}
	if input.ShippingCost.IsNegative() {
		return nil, false, badRequest("shipping cost must not be negative")
	}

	subtotal := decimal.Zero
	for i, item := range input.Items {
		if item.ProductID == "" {
			return nil, false, badRequest(fmt.Sprintf("item %d has no product id", i))
		}
		if item.Quantity < 1 {
			return nil, false, badRequest(fmt.Sprintf("item %d quantity must be at least 1", i))
		}
		if item.UnitPrice.IsNegative() {
			return nil, false, badRequest(fmt.Sprintf("item %d unit price must not be negative", i))
		}
		subtotal = subtotal.Add(item.LineTotal())
	}

	o := &Order{
		ID:               s.newID(),
		Status:           StatusConfirmed,
		UserID:           input.UserID,
		GuestEmail:       strings.TrimSpace(input.GuestEmail),
		Items:            input.Items,
		Subtotal:         subtotal,
		ShippingCost:     input.ShippingCost,
		Total:            subtotal.Add(input.ShippingCost),
		PaymentReference: strings.TrimSpace(input.PaymentReference),
		Shipping:         input.Shipping,
		OrderDate:        s.now().UTC(),
	}
	o.UpdatedAt = o.OrderDate

	if !o.Actionable() {
		return nil, false, badRequest("order needs a user id or an email")
	}

	// Checkout retries arrive with the same gateway reference.
	if o.PaymentReference != "" {
		existing, err := s.repo.FindByPaymentReference(ctx, o.PaymentReference)
		if err == nil {
			log.Info("order already exists for payment reference",
				zap.String("order_id", existing.ID),
				zap.String("reference", o.PaymentReference),
			)
			return existing, false, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, false, err
		}
	}

	for attempt := 1; ; attempt++ {
		_, err := s.repo.Create(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateOrderID) {
			return nil, false, err
		}
		if attempt == maxIDAttempts {
			log.Error("order id collisions exhausted", zap.Int("attempts", attempt))
			return nil, false, fmt.Errorf("%w: %w", ErrStoreWrite, err)
		}
		log.Warn("order id collision, regenerating", zap.String("order_id", o.ID))
		o.ID = s.newID()
	}

	log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return o, true, nil
}

func (s *service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, badRequest("order id is required")
	}
	return s.repo.Get(ctx, orderID)
}

func (s *service) DeleteOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return badRequest("order id is required")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	if err := s.repo.Delete(ctx, orderID); err != nil {
		return err
	}

	logger.FromCtx(ctx).Info("order deleted", zap.String("order_id", orderID))
	return nil
}

func (s *service) ListUserOrders(ctx context.Context, userID string) ([]*Order, error) {
	if userID == "" {
		return nil, badRequest("user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) CheckReference(ctx context.Context, reference string) (string, bool, error) {
	if reference == "" {
		return "", false, ErrMissingReference
	}

	o, err := s.repo.FindByPaymentReference(ctx, reference)
	if errors.Is(err, ErrOrderNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return o.ID, true, nil
}

func (s *service) AttachPaymentReference(ctx context.Context, orderID, reference string) error {
	if orderID == "" {
		return badRequest("order id is required")
	}
	if reference == "" {
		return ErrMissingReference
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PaymentReference == reference {
		return nil
	}
	if err := referenceChangeable(o); err != nil {
		logger.FromCtx(ctx).Warn("payment reference change refused",
			zap.String("order_id", orderID),
			zap.String("status", string(o.Status)),
			zap.Bool("has_reference", o.PaymentReference != ""),
		)
		return err
	}

	return s.repo.AttachPaymentReference(ctx, orderID, reference)
}

// referenceChangeable reports whether o can still be bound to a new gateway
// transaction: it must be unpaid and unbound.
func referenceChangeable(o *Order) error {
	if o.Status != StatusConfirmed || o.PaymentReference != "" {
		return ErrReferenceLocked
	}
	return nil
}

func (s *service) BackfillUserID(ctx context.Context, email, userID string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" || userID == "" {
		return 0, badRequest("email and user id are required")
	}

	n, err := s.repo.BackfillUserID(ctx, email, userID)
	if err != nil {
		return 0, err
	}

	logger.FromCtx(ctx).Info("guest orders assigned to user",
		zap.String("user_id", userID),
		zap.Int64("updated", n),
	)
	return n, nil
}

// VerifyAndConfirmPayment checks the order's gateway transaction and moves the
// order to submitted. The status write is the result of the call; the
// confirmation email is queued afterwards and never affects it.
func (s *service) VerifyAndConfirmPayment(ctx context.Context, orderID string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "VerifyAndConfirmPayment"),
		zap.String("order_id", orderID),
	)

	if orderID == "" {
		return badRequest("order id is required")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if o.PaymentReference == "" {
		log.Warn("order has no payment reference")
		return ErrMissingReference
	}

	v, err := s.gateway.Verify(ctx, o.PaymentReference)
	if err != nil {
		log.Error("payment verification failed", zap.Error(err))
		return fmt.Errorf("verify payment %s: %w", o.PaymentReference, err)
	}

	if !v.Successful() {
		log.Warn("gateway reported unsuccessful payment", zap.String("gateway_status", v.Status))
		return &PaymentNotSuccessfulError{Status: v.Status}
	}

	switch paid, due := v.AmountMinorUnits, o.AmountMinorUnits(); {
	case paid < due:
		log.Warn("paid amount below order total",
			zap.Int64("paid_minor", paid),
			zap.Int64("order_minor", due),
		)
		return &UnderpaidError{PaidMinorUnits: paid, ExpectedMinorUnits: due}
	case paid > due:
		log.Warn("paid amount above order total",
			zap.Int64("paid_minor", paid),
			zap.Int64("order_minor", due),
		)
	}

	if o.Status != StatusSubmitted && o.Status.Reached(StatusSubmitted) {
		log.Info("order already past payment confirmation", zap.String("status", string(o.Status)))
		return nil
	}

	if err := checkTransition(o.Status, StatusSubmitted); err != nil {
		return err
	}

	note := "payment verified"
	if v.Channel != "" {
		note += " via " + v.Channel
	}
	if err := s.repo.UpdateStatus(ctx, o.ID, o.Status, StatusSubmitted, nil, &note); err != nil {
		return err
	}

	log.Info("payment confirmed", zap.String("reference", o.PaymentReference))
	s.publish(ctx, o.ID, o.Status, StatusSubmitted)

	if to := o.ContactEmail(); to != "" {
		msg, err := notification.PaymentConfirmedEmail(to, notification.PaymentNotice{
			OrderID:      o.ID,
			CustomerName: o.Shipping.Name,
			Amount:       o.Total.StringFixed(2),
			Reference:    o.PaymentReference,
			TrackingURL:  s.trackingURL(o.ID),
		})
		s.notify(ctx, msg, err)
	}

	return nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateStatus"),
		zap.String("order_id", input.OrderID),
		zap.String("status", input.Status),
	)

	if input.OrderID == "" {
		return badRequest("order id is required")
	}
	next, err := ParseStatus(input.Status)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(input.OrderID)
	defer unlock()

	o, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return err
	}

	if err := checkTransition(o.Status, next); err != nil {
		log.Warn("rejected status change", zap.String("current", string(o.Status)))
		return err
	}

	if err := s.repo.UpdateStatus(ctx, o.ID, o.Status, next, input.Tracking, input.Note); err != nil {
		return err
	}

	log.Info("order status updated", zap.String("previous", string(o.Status)))
	s.publish(ctx, o.ID, o.Status, next)

	notice := notification.StatusNotice{
		OrderID:      o.ID,
		CustomerName: input.Contact.Name,
		Status:       string(next),
		TrackingURL:  s.trackingURL(o.ID),
		Tracking:     utils.PtrString(input.Tracking),
		Note:         utils.PtrString(input.Note),
	}
	if input.Contact.Email != "" {
		msg, err := notification.StatusEmail(input.Contact.Email, notice)
		s.notify(ctx, msg, err)
	}
	if input.Contact.Phone != "" {
		msg, err := notification.StatusSMS(input.Contact.Phone, notice)
		s.notify(ctx, msg, err)
	}

	return nil
}

// ConfirmDelivery marks an order delivered on the customer's behalf. Account
// orders need the owning user; guest orders need the email used at checkout.
func (s *service) ConfirmDelivery(ctx context.Context, orderID, requestingUserID, email string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmDelivery"),
		zap.String("order_id", orderID),
	)

	if orderID == "" {
		return badRequest("order id is required")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if o.IsGuest() {
		if !o.MatchesEmail(email) {
			log.Warn("guest delivery confirmation with mismatched email")
			return ErrUnauthorized
		}
	} else if !o.OwnedBy(requestingUserID) {
		log.Warn("delivery confirmation by non-owner", zap.String("requesting_user", requestingUserID))
		return ErrUnauthorized
	}

	if err := checkTransition(o.Status, StatusDelivered); err != nil {
		return err
	}

	note := "delivery confirmed by customer"
	if err := s.repo.UpdateStatus(ctx, o.ID, o.Status, StatusDelivered, nil, &note); err != nil {
		return err
	}

	log.Info("delivery confirmed")
	s.publish(ctx, o.ID, o.Status, StatusDelivered)
	return nil
}

func (s *service) InitializePayment(
	ctx context.Context,
	email string,
	amount decimal.Decimal,
	metadata map[string]any,
) (*payment.InitializeResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, badRequest("email is required")
	}

	// A transaction for an existing order is always charged at its stored total.
	orderID, _ := metadata["orderId"].(string)
	if orderID != "" {
		o, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := referenceChangeable(o); err != nil {
			return nil, err
		}
		if !amount.Equal(o.Total) {
			logger.FromCtx(ctx).Warn("requested amount replaced by order total",
				zap.String("order_id", orderID),
				zap.String("requested", amount.StringFixed(2)),
				zap.String("total", o.Total.StringFixed(2)),
			)
		}
		amount = o.Total
	}

	if !amount.IsPositive() {
		return nil, badRequest("amount must be greater than zero")
	}

	res, err := s.gateway.Initialize(ctx, email, amount, metadata)
	if err != nil {
		return nil, err
	}

	if orderID != "" {
		if err := s.AttachPaymentReference(ctx, orderID, res.Reference); err != nil {
			logger.FromCtx(ctx).Error("failed to attach payment reference",
				zap.String("order_id", orderID),
				zap.String("reference", res.Reference),
				zap.Error(err),
			)
			return nil, err
		}
	}

	return res, nil
}

func (s *service) VerifyPayment(ctx context.Context, reference string) (*payment.Verification, error) {
	if reference == "" {
		return nil, ErrMissingReference
	}
	return s.gateway.Verify(ctx, reference)
}

func (s *service) notify(ctx context.Context, msg notification.Message, buildErr error) {
	log := logger.FromCtx(ctx).With(
		zap.String("order_id", msg.OrderID),
		zap.String("kind", string(msg.Kind)),
	)

	if buildErr != nil {
		log.Error("failed to render notification", zap.Error(buildErr))
		return
	}
	if err := s.notifier.Dispatch(ctx, msg); err != nil {
		log.Warn("notification not dispatched", zap.Error(err))
	}
}

func (s *service) publish(ctx context.Context, orderID string, from, to Status) {
	err := s.publisher.PublishStatusChanged(ctx, events.StatusChanged{
		OrderID: orderID,
		From:    string(from),
		To:      string(to),
		At:      s.now().UTC(),
	})
	if err != nil {
		logger.FromCtx(ctx).Warn("status event not published",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
