package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"github.com/Haseeb-U/RequestApprover/internal/pass/testutil"
	"gorm.io/gorm"
)

func newChainService(db *gorm.DB) *ChainService {
	return NewChainService(db, repository.NewRepositories(db))
}

func TestSetChainReplacesWholly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newChainService(db)
	ctx := context.Background()

	admin := testutil.SeedUser(t, db, "Root", "root@cbl.com")
	testutil.SeedAdmin(t, db, admin.ID)
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	bob := testutil.SeedUser(t, db, "Bob", "bob@cbl.com")
	carol := testutil.SeedUser(t, db, "Carol", "carol@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID, bob.ID)

	if err := svc.SetChain(ctx, admin.ID, rt.ID, []string{carol.ID, alice.ID}); err != nil {
		t.Fatalf("SetChain failed: %v", err)
	}

	entries, err := svc.GetChain(ctx, rt.ID)
	if err != nil {
		t.Fatalf("GetChain failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ApproverID != carol.ID || entries[0].SequenceNumber != 1 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ApproverID != alice.ID || entries[1].SequenceNumber != 2 {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}

	// Bob 彻底出链
	var count int64
	db.Model(&entity.ApprovalChainEntry{}).
		Where("request_type_id = ? AND approver_id = ?", rt.ID, bob.ID).
		Count(&count)
	if count != 0 {
		t.Errorf("bob should have been removed from the chain")
	}
}

func TestSetChainAllowsRepeatedApprover(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newChainService(db)
	ctx := context.Background()

	admin := testutil.SeedUser(t, db, "Root", "root@cbl.com")
	testutil.SeedAdmin(t, db, admin.ID)
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)

	if err := svc.SetChain(ctx, admin.ID, rt.ID, []string{alice.ID, alice.ID}); err != nil {
		t.Fatalf("SetChain with repeated approver failed: %v", err)
	}

	entries, err := svc.GetChain(ctx, rt.ID)
	if err != nil {
		t.Fatalf("GetChain failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestSetChainAuthorization(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newChainService(db)
	ctx := context.Background()

	admin := testutil.SeedUser(t, db, "Root", "root@cbl.com")
	testutil.SeedAdmin(t, db, admin.ID)
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)

	// 非管理员禁止
	err := svc.SetChain(ctx, alice.ID, rt.ID, []string{alice.ID})
	if !errors.Is(err, ErrNotAdmin) {
		t.Errorf("expected ErrNotAdmin, got %v", err)
	}

	// 空链禁止
	err = svc.SetChain(ctx, admin.ID, rt.ID, nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	// 未注册的审批人禁止
	err = svc.SetChain(ctx, admin.ID, rt.ID, []string{"00000000-0000-0000-0000-000000000000"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	// 类型不存在
	err = svc.SetChain(ctx, admin.ID, "00000000-0000-0000-0000-000000000000", []string{alice.ID})
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}
}

func TestSetInitiatorsAndListMyTypes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newChainService(db)
	ctx := context.Background()

	admin := testutil.SeedUser(t, db, "Root", "root@cbl.com")
	testutil.SeedAdmin(t, db, admin.ID)
	dana := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	outward := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedRequestType(t, db, entity.PassKindInward)

	if err := svc.SetInitiators(ctx, admin.ID, outward.ID, []string{dana.ID}); err != nil {
		t.Fatalf("SetInitiators failed: %v", err)
	}

	types, err := svc.ListMyRequestTypes(ctx, dana.ID)
	if err != nil {
		t.Fatalf("ListMyRequestTypes failed: %v", err)
	}
	if len(types) != 1 || types[0].Name != entity.PassKindOutward {
		t.Errorf("expected only outward, got %+v", types)
	}

	// 清空名单
	if err := svc.SetInitiators(ctx, admin.ID, outward.ID, nil); err != nil {
		t.Fatalf("SetInitiators clear failed: %v", err)
	}
	types, err = svc.ListMyRequestTypes(ctx, dana.ID)
	if err != nil {
		t.Fatalf("ListMyRequestTypes failed: %v", err)
	}
	if len(types) != 0 {
		t.Errorf("expected no types after clearing, got %+v", types)
	}

	// 非管理员禁止
	err = svc.SetInitiators(ctx, dana.ID, outward.ID, []string{dana.ID})
	if !errors.Is(err, ErrNotAdmin) {
		t.Errorf("expected ErrNotAdmin, got %v", err)
	}
}
