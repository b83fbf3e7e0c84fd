package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"devicehub-backend/internal/model"
)

// Store defines the interface for all database operations the connectivity
// core needs. The surrounding CRUD application owns everything else.
type Store interface {
	DB() *gorm.DB

	DeviceByID(ctx context.Context, id int64) (*model.Device, error)
	DeviceByToken(ctx context.Context, token string) (*model.Device, error)

	// UpsertPin writes the current value for (device, pin) and appends exactly
	// one history row, in a single transaction.
	UpsertPin(ctx context.Context, deviceID int64, pin int, value string, dataType model.PinDataType, now time.Time) error
	LatestPin(ctx context.Context, deviceID int64, pin int) (*model.VirtualPin, error)
	PinHistory(ctx context.Context, deviceID int64, filter HistoryFilter) ([]model.PinHistory, error)

	// MarkOnline stamps lastPing and flips the device ONLINE; used by the
	// gateway handshake and by passive HTTP data reports alike.
	MarkOnline(ctx context.Context, deviceID int64, ip string, now time.Time) error
	TouchDevice(ctx context.Context, deviceID int64, now time.Time) error
	SetDeviceStatus(ctx context.Context, deviceID int64, status model.DeviceStatus) error

	// MarkStaleOffline flips ONLINE devices whose lastPing predates cutoff to
	// OFFLINE and returns the affected devices. Devices with a fresher ping
	// are left alone, so a replacement connection is never clobbered.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]model.Device, error)

	RecordEvent(ctx context.Context, deviceID int64, code, data string, now time.Time) error
	RecordCommand(ctx context.Context, deviceID int64, cmdType, payload string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) DeviceByID(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	if err := s.db.WithContext(ctx).First(&device, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrDeviceNotFound, id)
		}
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) DeviceByToken(ctx context.Context, token string) (*model.Device, error) {
	var device model.Device
	if err := s.db.WithContext(ctx).Where("auth_token = ?", token).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &device, nil
}

// UpsertPin keeps the one-row-per-(device,pin) invariant with an ON CONFLICT
// upsert, and appends the history row inside the same transaction so a
// successful upsert always produces exactly one history entry.
func (s *gormStore) UpsertPin(ctx context.Context, deviceID int64, pin int, value string, dataType model.PinDataType, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current := model.VirtualPin{
			DeviceID:    deviceID,
			PinNumber:   pin,
			Value:       value,
			DataType:    dataType,
			LastUpdated: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "pin_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "data_type", "last_updated"}),
		}).Create(&current).Error; err != nil {
			return fmt.Errorf("failed to upsert pin %d for device %d: %w", pin, deviceID, err)
		}

		history := model.PinHistory{
			DeviceID:   deviceID,
			PinNumber:  pin,
			Value:      value,
			DataType:   dataType,
			RecordedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to append pin history for device %d: %w", deviceID, err)
		}
		return nil
	})
}

func (s *gormStore) LatestPin(ctx context.Context, deviceID int64, pin int) (*model.VirtualPin, error) {
	var row model.VirtualPin
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND pin_number = ?", deviceID, pin).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *gormStore) PinHistory(ctx context.Context, deviceID int64, filter HistoryFilter) ([]model.PinHistory, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if filter.Pin != nil {
		q = q.Where("pin_number = ?", *filter.Pin)
	}
	if filter.Hours > 0 {
		q = q.Where("recorded_at >= ?", time.Now().UTC().Add(-time.Duration(filter.Hours)*time.Hour))
	}

	var rows []model.PinHistory
	if err := q.Order("recorded_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query pin history for device %d: %w", deviceID, err)
	}
	return rows, nil
}

func (s *gormStore) MarkOnline(ctx context.Context, deviceID int64, ip string, now time.Time) error {
	updates := map[string]any{
		"status":    model.StatusOnline,
		"last_ping": now,
	}
	if ip != "" {
		updates["ip_address"] = ip
	}
	result := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ? AND status <> ?", deviceID, model.StatusDisabled).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark device %d online: %w", deviceID, result.Error)
	}
	return nil
}

func (s *gormStore) TouchDevice(ctx context.Context, deviceID int64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", deviceID).
		Update("last_ping", now).Error
}

func (s *gormStore) SetDeviceStatus(ctx context.Context, deviceID int64, status model.DeviceStatus) error {
	return s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", deviceID).
		Update("status", status).Error
}

// MarkStaleOffline handles devices that vanished without a clean close.
func (s *gormStore) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]model.Device, error) {
	var stale []model.Device
	err := s.db.WithContext(ctx).
		Where("status = ? AND (last_ping IS NULL OR last_ping < ?)", model.StatusOnline, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale devices: %w", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(stale))
	for i, d := range stale {
		ids[i] = d.ID
	}
	// The lastPing guard repeats here: a device that pinged between the SELECT
	// and the UPDATE keeps its ONLINE status.
	err = s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id IN ? AND status = ? AND (last_ping IS NULL OR last_ping < ?)", ids, model.StatusOnline, cutoff).
		Update("status", model.StatusOffline).Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark stale devices offline: %w", err)
	}
	return stale, nil
}

func (s *gormStore) RecordEvent(ctx context.Context, deviceID int64, code, data string, now time.Time) error {
	event := model.DeviceEvent{
		DeviceID:   deviceID,
		EventCode:  code,
		Data:       data,
		RecordedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("failed to record event %q for device %d: %w", code, deviceID, err)
	}
	return nil
}

func (s *gormStore) RecordCommand(ctx context.Context, deviceID int64, cmdType, payload string) error {
	command := model.Command{
		DeviceID: deviceID,
		Type:     cmdType,
		Payload:  payload,
		Status:   model.CommandPending,
	}
	if err := s.db.WithContext(ctx).Create(&command).Error; err != nil {
		return fmt.Errorf("failed to record command %q for device %d: %w", cmdType, deviceID, err)
	}
	return nil
}
