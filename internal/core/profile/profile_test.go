package profile

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "profile_test.db")), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&UserProfile{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(db)
}

func TestFindByDeviceID_EmptyIsAnonymous(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.FindByDeviceID(context.Background(), "")
	if err != nil {
		t.Fatalf("FindByDeviceID failed: %v", err)
	}
	if p != nil {
		t.Fatalf("empty device id must resolve to anonymous, got %+v", p)
	}
}

func TestFindByDeviceID_MissingIsNotAnError(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.FindByDeviceID(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("FindByDeviceID failed: %v", err)
	}
	if p != nil {
		t.Fatalf("unknown device must return nil profile, got %+v", p)
	}
}

func TestUpsert_CreatesThenReplaces(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, &UserProfile{
		DeviceID:  "device-1",
		Name:      "Asha",
		Allergies: datatypes.JSONSlice[string]{"peanut"},
		AvoidList: datatypes.JSONSlice[string]{"palm oil"},
	})
	if err != nil {
		t.Fatalf("Upsert create failed: %v", err)
	}
	if created.Name != "Asha" || len(created.Allergies) != 1 {
		t.Fatalf("unexpected created profile: %+v", created)
	}

	updated, err := svc.Upsert(ctx, &UserProfile{
		DeviceID:  "device-1",
		Name:      "Asha",
		Allergies: datatypes.JSONSlice[string]{"peanut", "soy"},
		AvoidList: datatypes.JSONSlice[string]{},
	})
	if err != nil {
		t.Fatalf("Upsert update failed: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("upsert must keep the same row: created=%d updated=%d", created.ID, updated.ID)
	}
	if len(updated.Allergies) != 2 {
		t.Fatalf("allergy list must be replaced wholesale, got %v", updated.Allergies)
	}
	// 清單整組取代，舊的迴避清單不殘留
	if len(updated.AvoidList) != 0 {
		t.Fatalf("avoid list must be replaced wholesale, got %v", updated.AvoidList)
	}
}

func TestConstraints_NilProfile(t *testing.T) {
	var p *UserProfile
	if p.Constraints() != nil {
		t.Fatalf("nil profile must yield nil constraints")
	}
}
