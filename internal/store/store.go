package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"locker-kiosk-backend/internal/model"
	"locker-kiosk-backend/internal/otp"
	"locker-kiosk-backend/internal/resolver"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Claim-check ledger.
	Submit(ctx context.Context, cc *model.ClaimCheck) (skipActuation bool, err error)
	Claim(ctx context.Context, lockerNumber, passcode string) ([]model.ClaimCheck, error)
	FindUnclaimed(ctx context.Context, lockerNumber string) ([]model.ClaimCheck, error)
	ListSubmissions(ctx context.Context, sortKey string) ([]model.ClaimCheck, error)
	GetSubmission(ctx context.Context, id string) (*model.ClaimCheck, error)
	MarkReceivedByID(ctx context.Context, id string, at time.Time) error

	// Device registry.
	RecordDetection(ctx context.Context, d *model.Device) error
	ListDetectedDevices(ctx context.Context) ([]model.Device, error)
	RegisterLocker(ctx context.Context, l *model.Locker) error
	UpdateLocker(ctx context.Context, l *model.Locker) error
	DeleteLocker(ctx context.Context, id string) error
	ListLockers(ctx context.Context) ([]model.Locker, error)
	GetLockerByNumber(ctx context.Context, number string) (*model.Locker, error)

	// Admin credential.
	GetAdmin(ctx context.Context) (*model.AdminCredential, error)
	BootstrapAdmin(ctx context.Context, email, pin string) (*model.AdminCredential, error)
	ProposeAdminChange(ctx context.Context, email, pin string, ttl time.Duration) (string, time.Time, error)
	VerifyAdminChange(ctx context.Context, passcode string) error

	// Push subscriptions.
	UpsertSubscription(ctx context.Context, s *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForRecipient(ctx context.Context, email string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM. Check-then-act
// sequences on the ledger are serialized per locker number with a keyed
// mutex in addition to the surrounding transaction; the backend runs as a
// single process, so in-process serialization is sufficient to preserve
// the occupancy invariant.
type gormStore struct {
	db       *gorm.DB
	resolver resolver.Resolver
	lockerMu sync.Map // locker number -> *sync.Mutex
}

// NewGormStore creates a new GORM-backed store using the given resolver
// for occupancy decisions.
func NewGormStore(db *gorm.DB, r resolver.Resolver) Store {
	return &gormStore{db: db, resolver: r}
}

// DB exposes the underlying handle for wiring collaborators that manage
// their own queries (the notification worker pool).
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) lockLocker(number string) func() {
	muIface, _ := s.lockerMu.LoadOrStore(number, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Submit runs the occupancy check and, if allowed, appends a new unclaimed
// claim check. The passcode is minted for the first occupant and reused
// for same-recipient additions, so one passcode gates the whole occupancy.
// cc.ID, cc.OTP and cc.CreatedAt are filled in on success.
func (s *gormStore) Submit(ctx context.Context, cc *model.ClaimCheck) (bool, error) {
	unlock := s.lockLocker(cc.LockerNumber)
	defer unlock()

	var skipActuation bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locker model.Locker
		if err := tx.Where("number = ?", cc.LockerNumber).First(&locker).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownLocker
			}
			return fmt.Errorf("failed to look up locker %q: %w", cc.LockerNumber, err)
		}

		unclaimed, err := findUnclaimed(tx, cc.LockerNumber)
		if err != nil {
			return err
		}

		decision, err := s.resolver.CanAccept(unclaimed, cc.RecipientEmail)
		if err != nil {
			return err
		}
		skipActuation = decision.SkipActuation

		code := resolver.SharedOTP(unclaimed)
		if code == "" {
			code, err = otp.Generate()
			if err != nil {
				return err
			}
		}

		cc.ID = uuid.NewString()
		cc.OTP = code
		cc.CreatedAt = time.Now().UTC()
		cc.DateReceived = nil

		if err := tx.Create(cc).Error; err != nil {
			return fmt.Errorf("failed to insert submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return skipActuation, nil
}

// Claim stamps every unclaimed row for the locker when the passcode
// matches. The stamp is all-or-nothing: a partial claim never occurs.
func (s *gormStore) Claim(ctx context.Context, lockerNumber, passcode string) ([]model.ClaimCheck, error) {
	unlock := s.lockLocker(lockerNumber)
	defer unlock()

	var claimed []model.ClaimCheck
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unclaimed, err := findUnclaimed(tx, lockerNumber)
		if err != nil {
			return err
		}

		rows, err := s.resolver.Claim(unclaimed, passcode)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ids := make([]string, len(rows))
		for i, cc := range rows {
			ids[i] = cc.ID
		}
		res := tx.Model(&model.ClaimCheck{}).
			Where("id IN ? AND date_received IS NULL", ids).
			Update("date_received", now)
		if res.Error != nil {
			return fmt.Errorf("failed to stamp claim checks: %w", res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("expected to stamp %d claim checks, stamped %d", len(ids), res.RowsAffected)
		}

		for i := range rows {
			rows[i].DateReceived = &now
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func findUnclaimed(tx *gorm.DB, lockerNumber string) ([]model.ClaimCheck, error) {
	var rows []model.ClaimCheck
	if err := tx.
		Where("locker_number = ? AND date_received IS NULL", lockerNumber).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch unclaimed claim checks for locker %q: %w", lockerNumber, err)
	}
	return rows, nil
}

// FindUnclaimed returns the unclaimed claim checks for a locker.
func (s *gormStore) FindUnclaimed(ctx context.Context, lockerNumber string) ([]model.ClaimCheck, error) {
	return findUnclaimed(s.db.WithContext(ctx), lockerNumber)
}

// submissionSortKeys whitelists the sortable columns for ListSubmissions.
var submissionSortKeys = map[string]string{
	"created_at":    "created_at DESC",
	"date_received": "date_received DESC",
	"locker_number": "locker_number ASC",
	"recipient":     "recipient_email ASC",
}

// ListSubmissions returns all claim-check rows sorted by the given key.
// Unknown keys fall back to creation time, newest first.
func (s *gormStore) ListSubmissions(ctx context.Context, sortKey string) ([]model.ClaimCheck, error) {
	order, ok := submissionSortKeys[strings.ToLower(sortKey)]
	if !ok {
		order = submissionSortKeys["created_at"]
	}
	var rows []model.ClaimCheck
	if err := s.db.WithContext(ctx).Order(order).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return rows, nil
}

// GetSubmission returns a single claim check by ID.
func (s *gormStore) GetSubmission(ctx context.Context, id string) (*model.ClaimCheck, error) {
	var cc model.ClaimCheck
	if err := s.db.WithContext(ctx).First(&cc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cc, nil
}

// MarkReceivedByID stamps a single claim check as received. This is the
// administrative override; normal retrieval goes through Claim.
func (s *gormStore) MarkReceivedByID(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.ClaimCheck{}).
		Where("id = ? AND date_received IS NULL", id).
		Update("date_received", at)
	if res.Error != nil {
		return fmt.Errorf("failed to mark claim check %q received: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDetection always inserts a new row. Every heartbeat from a
// controller is a fact, not a state update; the registry's current-device
// queries rely on newest-detection-wins.
func (s *gormStore) RecordDetection(ctx context.Context, d *model.Device) error {
	d.ID = uuid.NewString()
	d.DetectedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to record device detection: %w", err)
	}
	return nil
}

// ListDetectedDevices returns the detection log, newest first.
func (s *gormStore) ListDetectedDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Order("detected_at DESC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// RegisterLocker creates a logical locker. Numbers are unique.
func (s *gormStore) RegisterLocker(ctx context.Context, l *model.Locker) error {
	l.ID = uuid.NewString()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Locker{}).Where("number = ?", l.Number).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check locker number: %w", err)
		}
		if count > 0 {
			return ErrDuplicateLockerNumber
		}
		if err := tx.Create(l).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
				return ErrDuplicateLockerNumber
			}
			return fmt.Errorf("failed to register locker: %w", err)
		}
		return nil
	})
}

// UpdateLocker replaces the mutable fields of an existing locker.
func (s *gormStore) UpdateLocker(ctx context.Context, l *model.Locker) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Locker
		if err := tx.First(&existing, "id = ?", l.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if l.Number != existing.Number {
			var count int64
			if err := tx.Model(&model.Locker{}).
				Where("number = ? AND id <> ?", l.Number, l.ID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check locker number: %w", err)
			}
			if count > 0 {
				return ErrDuplicateLockerNumber
			}
		}
		updates := map[string]any{
			"number":      l.Number,
			"device_name": l.DeviceName,
			"ip_address":  l.IPAddress,
			"locks":       l.Locks,
			"leds":        l.LEDs,
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update locker: %w", err)
		}
		return nil
	})
}

// DeleteLocker removes a locker definition. Claim-check rows referencing
// its number are left untouched.
func (s *gormStore) DeleteLocker(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Locker{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete locker: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLockers returns all registered lockers ordered by number.
func (s *gormStore) ListLockers(ctx context.Context) ([]model.Locker, error) {
	var lockers []model.Locker
	if err := s.db.WithContext(ctx).Order("number ASC").Find(&lockers).Error; err != nil {
		return nil, fmt.Errorf("failed to list lockers: %w", err)
	}
	return lockers, nil
}

// GetLockerByNumber returns the locker with the given human-facing number.
func (s *gormStore) GetLockerByNumber(ctx context.Context, number string) (*model.Locker, error) {
	var locker model.Locker
	if err := s.db.WithContext(ctx).Where("number = ?", number).First(&locker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownLocker
		}
		return nil, err
	}
	return &locker, nil
}

// GetAdmin returns the singleton admin credential.
func (s *gormStore) GetAdmin(ctx context.Context) (*model.AdminCredential, error) {
	var admin model.AdminCredential
	if err := s.db.WithContext(ctx).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &admin, nil
}

// BootstrapAdmin creates the singleton admin credential. Creation is
// guarded by a transaction that checks-then-inserts only when no row
// exists yet.
func (s *gormStore) BootstrapAdmin(ctx context.Context, email, pin string) (*model.AdminCredential, error) {
	admin := &model.AdminCredential{
		ID:    uuid.NewString(),
		Email: email,
		PIN:   pin,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.AdminCredential{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count admin credentials: %w", err)
		}
		if count > 0 {
			return ErrAdminExists
		}
		if err := tx.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// ProposeAdminChange stages a new email/PIN pair and mints a passcode that
// must be verified before the change commits.
func (s *gormStore) ProposeAdminChange(ctx context.Context, email, pin string, ttl time.Duration) (string, time.Time, error) {
	code, err := otp.Generate()
	if err != nil {
		return "", time.Time{}, err
	}
	expires := time.Now().UTC().Add(ttl)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin model.AdminCredential
		if err := tx.First(&admin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updates := map[string]any{
			"pending_email": email,
			"pending_pin":   pin,
			"otp":           code,
			"otp_expires":   expires,
		}
		if err := tx.Model(&admin).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to stage admin change: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expires, nil
}

// VerifyAdminChange commits the staged credential change when the passcode
// matches and has not expired. Unlike document retrieval, expiry is
// enforced here on the server side.
func (s *gormStore) VerifyAdminChange(ctx context.Context, passcode string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin model.AdminCredential
		if err := tx.First(&admin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if admin.OTP == nil || admin.PendingEmail == nil || admin.PendingPIN == nil {
			return resolver.ErrInvalidCredentials
		}
		if *admin.OTP != passcode {
			return resolver.ErrInvalidCredentials
		}
		if admin.OTPExpires != nil && time.Now().UTC().After(*admin.OTPExpires) {
			return ErrOTPExpired
		}
		updates := map[string]any{
			"email":         *admin.PendingEmail,
			"pin":           *admin.PendingPIN,
			"pending_email": nil,
			"pending_pin":   nil,
			"otp":           nil,
			"otp_expires":   nil,
		}
		if err := tx.Model(&admin).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to commit admin change: %w", err)
		}
		return nil
	})
}

// UpsertSubscription creates or replaces a push subscription by endpoint.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	sub.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a push subscription by endpoint.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// SubscriptionsForRecipient returns the push subscriptions registered for
// a recipient email.
func (s *gormStore) SubscriptionsForRecipient(ctx context.Context, email string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("recipient_email = ?", email).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	return subs, nil
}

// isDuplicate detects unique-constraint violations across drivers that do
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
