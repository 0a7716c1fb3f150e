package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"github.com/Haseeb-U/RequestApprover/internal/pass/testutil"
	"gorm.io/gorm"
)

// recordSender 记录发出的通知，代替真实 SMTP
type recordSender struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (r *recordSender) Send(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// waitFor 等待异步派发完成，超时即失败
func (r *recordSender) waitFor(t *testing.T, n int) []sentMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.sent) >= n {
			out := make([]sentMail, len(r.sent))
			copy(out, r.sent)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("expected at least %d notifications, got %d", n, len(r.sent))
	return nil
}

func (r *recordSender) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

func newTestService(db *gorm.DB, sender *recordSender) *RequestService {
	repos := repository.NewRepositories(db)
	notifier := NewNotifier(sender, "http://localhost:5000")
	return NewRequestService(db, repos, notifier)
}

func outwardReq() CreateRequestReq {
	return CreateRequestReq{
		Type: entity.PassKindOutward,
		Outward: &OutwardInput{
			RecipientName: "Warehouse B",
			Purpose:       entity.PurposeSample,
			Description:   "Fabric samples",
			Unit:          "pcs",
			Quantity:      10,
			Department:    "QA",
			Priority:      entity.PriorityHigh,
		},
	}
}

func TestCreateOutwardRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &recordSender{}
	svc := newTestService(db, sender)
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	approver := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, approver.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var req entity.Request
	if err := db.Where("id = ?", result.RequestID).First(&req).Error; err != nil {
		t.Fatalf("request not persisted: %v", err)
	}
	if req.Status != entity.RequestStatusPending {
		t.Errorf("expected status pending, got %s", req.Status)
	}

	var pass entity.OutwardPass
	if err := db.Where("request_id = ?", result.RequestID).First(&pass).Error; err != nil {
		t.Fatalf("outward pass not persisted: %v", err)
	}
	if pass.RecipientName != "Warehouse B" {
		t.Errorf("unexpected recipient: %s", pass.RecipientName)
	}

	// 1 号审批人收到通知
	sent := sender.waitFor(t, 1)
	if sent[0].To != "alice@cbl.com" {
		t.Errorf("expected notification to alice@cbl.com, got %s", sent[0].To)
	}
}

func TestCreateWithEmptyChain(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &recordSender{}
	svc := newTestService(db, sender)
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	testutil.SeedRequestType(t, db, entity.PassKindOutward)

	// 链为空也能创建，只是没人可批
	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var req entity.Request
	if err := db.Where("id = ?", result.RequestID).First(&req).Error; err != nil {
		t.Fatalf("request not persisted: %v", err)
	}
	if req.Status != entity.RequestStatusPending {
		t.Errorf("expected status pending, got %s", req.Status)
	}
}

func TestCreateValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedRequestType(t, db, entity.PassKindInward)

	cases := []struct {
		name string
		req  CreateRequestReq
		want error
	}{
		{
			name: "unknown type",
			req:  CreateRequestReq{Type: "sideways"},
			want: ErrTypeNotFound,
		},
		{
			name: "missing payload",
			req:  CreateRequestReq{Type: entity.PassKindOutward},
			want: ErrValidation,
		},
		{
			name: "missing recipient",
			req: CreateRequestReq{
				Type:    entity.PassKindOutward,
				Outward: &OutwardInput{Purpose: entity.PurposeSample, Quantity: 1},
			},
			want: ErrValidation,
		},
		{
			name: "bad purpose",
			req: CreateRequestReq{
				Type:    entity.PassKindOutward,
				Outward: &OutwardInput{RecipientName: "X", Purpose: "Borrowed", Quantity: 1},
			},
			want: ErrValidation,
		},
		{
			name: "zero quantity",
			req: CreateRequestReq{
				Type:    entity.PassKindOutward,
				Outward: &OutwardInput{RecipientName: "X", Purpose: entity.PurposeSample, Quantity: 0},
			},
			want: ErrValidation,
		},
		{
			name: "bad priority",
			req: CreateRequestReq{
				Type: entity.PassKindOutward,
				Outward: &OutwardInput{
					RecipientName: "X", Purpose: entity.PurposeSample, Quantity: 1, Priority: "Urgent",
				},
			},
			want: ErrValidation,
		},
		{
			name: "inward missing received_by",
			req: CreateRequestReq{
				Type:   entity.PassKindInward,
				Inward: &InwardInput{Quantity: 1},
			},
			want: ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, initiator.ID, tc.req)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// 三级链 Alice → Bob → Carol 逐级批准直到终态
func TestApprovalChainWalk(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &recordSender{}
	svc := newTestService(db, sender)
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	bob := testutil.SeedUser(t, db, "Bob", "bob@cbl.com")
	carol := testutil.SeedUser(t, db, "Carol", "carol@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID, bob.ID, carol.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sender.waitFor(t, 1)
	sender.reset()

	assertStatus := func(want string) {
		t.Helper()
		var req entity.Request
		if err := db.Where("id = ?", result.RequestID).First(&req).Error; err != nil {
			t.Fatalf("load request: %v", err)
		}
		if req.Status != want {
			t.Fatalf("expected status %s, got %s", want, req.Status)
		}
	}

	// Alice 批准：仍 pending，通知 Bob 和发起人
	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, "ok"); err != nil {
		t.Fatalf("Alice approve failed: %v", err)
	}
	assertStatus(entity.RequestStatusPending)
	sent := sender.waitFor(t, 2)
	recipients := map[string]bool{}
	for _, m := range sent {
		recipients[m.To] = true
	}
	if !recipients["bob@cbl.com"] || !recipients["dana@cbl.com"] {
		t.Errorf("expected notifications to bob and dana, got %v", recipients)
	}
	sender.reset()

	// Bob 批准：仍 pending
	if err := svc.Decide(ctx, bob.ID, result.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Bob approve failed: %v", err)
	}
	assertStatus(entity.RequestStatusPending)
	sender.waitFor(t, 2)
	sender.reset()

	// Carol 批准：末位，整体通过
	if err := svc.Decide(ctx, carol.ID, result.RequestID, entity.DecisionApproved, "final"); err != nil {
		t.Fatalf("Carol approve failed: %v", err)
	}
	assertStatus(entity.RequestStatusApproved)
	sent = sender.waitFor(t, 1)
	found := false
	for _, m := range sent {
		if m.To == "dana@cbl.com" && strings.Contains(m.Subject, "通过") {
			found = true
		}
	}
	if !found {
		t.Errorf("initiator should receive final approval notice, got %+v", sent)
	}

	// 决策记录按序号完整
	approvals, err := svc.ListApprovals(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("ListApprovals failed: %v", err)
	}
	if len(approvals) != 3 {
		t.Fatalf("expected 3 approvals, got %d", len(approvals))
	}
	for i, a := range approvals {
		if a.SequenceNumber != i+1 {
			t.Errorf("approval %d has sequence %d", i, a.SequenceNumber)
		}
		if a.Decision != entity.DecisionApproved {
			t.Errorf("approval %d decision %s", i, a.Decision)
		}
	}
}

// 中段驳回：立即终态，通知发起人和上一级
func TestMidChainReject(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &recordSender{}
	svc := newTestService(db, sender)
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	bob := testutil.SeedUser(t, db, "Bob", "bob@cbl.com")
	carol := testutil.SeedUser(t, db, "Carol", "carol@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID, bob.ID, carol.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sender.waitFor(t, 1)

	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Alice approve failed: %v", err)
	}
	// 创建 1 封 + Alice 批准 2 封，全部落地后再清空
	sender.waitFor(t, 3)
	sender.reset()

	if err := svc.Decide(ctx, bob.ID, result.RequestID, entity.DecisionRejected, "quantity mismatch"); err != nil {
		t.Fatalf("Bob reject failed: %v", err)
	}

	var req entity.Request
	db.Where("id = ?", result.RequestID).First(&req)
	if req.Status != entity.RequestStatusRejected {
		t.Fatalf("expected status rejected, got %s", req.Status)
	}

	sent := sender.waitFor(t, 2)
	recipients := map[string]bool{}
	for _, m := range sent {
		recipients[m.To] = true
		if !strings.Contains(m.Body, "quantity mismatch") {
			t.Errorf("rejection comments missing from notification to %s", m.To)
		}
	}
	if !recipients["dana@cbl.com"] || !recipients["alice@cbl.com"] {
		t.Errorf("expected notifications to dana and alice, got %v", recipients)
	}

	// 终态后 Carol 再批准必须冲突
	err = svc.Decide(ctx, carol.ID, result.RequestID, entity.DecisionApproved, "")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("expected ErrAlreadyProcessed, got %v", err)
	}
}

// 首位驳回：没有上一级，只通知发起人
func TestFirstPositionReject(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &recordSender{}
	svc := newTestService(db, sender)
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sender.waitFor(t, 1)
	sender.reset()

	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionRejected, "no"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	sent := sender.waitFor(t, 1)
	if len(sent) != 1 || sent[0].To != "dana@cbl.com" {
		t.Errorf("expected a single notification to dana, got %+v", sent)
	}
}

func TestDuplicateDecision(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	bob := testutil.SeedUser(t, db, "Bob", "bob@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID, bob.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}
	err = svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, "")
	if !errors.Is(err, ErrAlreadyActed) {
		t.Errorf("expected ErrAlreadyActed, got %v", err)
	}

	// 决策记录只有一条
	var count int64
	db.Model(&entity.RequestApproval{}).Where("request_id = ?", result.RequestID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 approval record, got %d", count)
	}
}

func TestNotApprover(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	mallory := testutil.SeedUser(t, db, "Mallory", "mallory@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err = svc.Decide(ctx, mallory.ID, result.RequestID, entity.DecisionApproved, "")
	if !errors.Is(err, ErrNotApprover) {
		t.Errorf("expected ErrNotApprover, got %v", err)
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")

	err := svc.Decide(ctx, alice.ID, "00000000-0000-0000-0000-000000000000", entity.DecisionApproved, "")
	if !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

// 同一人占链上多个位置：按未决策的最小序号逐次决策
func TestApproverInMultiplePositions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	bob := testutil.SeedUser(t, db, "Bob", "bob@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	// Alice 在 1 号和 3 号
	testutil.SeedChain(t, db, rt.ID, alice.ID, bob.ID, alice.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Alice seq 1 failed: %v", err)
	}
	if err := svc.Decide(ctx, bob.ID, result.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Bob seq 2 failed: %v", err)
	}
	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Alice seq 3 failed: %v", err)
	}

	var req entity.Request
	db.Where("id = ?", result.RequestID).First(&req)
	if req.Status != entity.RequestStatusApproved {
		t.Errorf("expected approved, got %s", req.Status)
	}

	// 第四次决策无位可用
	err = svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, "")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestListPendingApprovals(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	bob := testutil.SeedUser(t, db, "Bob", "bob@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID, bob.ID)

	first, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, initiator.ID, outwardReq()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	views, err := svc.ListPendingApprovals(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListPendingApprovals failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 pending for alice, got %d", len(views))
	}

	// Alice 决策第一单后，该单从她的队列消失，进入 Bob 的队列
	if err := svc.Decide(ctx, alice.ID, first.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	views, err = svc.ListPendingApprovals(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListPendingApprovals failed: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("expected 1 pending for alice, got %d", len(views))
	}

	views, err = svc.ListPendingApprovals(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListPendingApprovals failed: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("expected 1 pending for bob, got %d", len(views))
	}
}

func TestListMineAndCounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID)

	approved, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rejected, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, initiator.ID, outwardReq()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Decide(ctx, alice.ID, approved.RequestID, entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if err := svc.Decide(ctx, alice.ID, rejected.RequestID, entity.DecisionRejected, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	views, err := svc.ListMine(ctx, initiator.ID)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(views))
	}
	for _, v := range views {
		if v.Payload == nil || v.Payload.Kind != entity.PassKindOutward {
			t.Errorf("request %s missing outward payload", v.RequestID)
		}
	}

	counts, err := svc.CountMine(ctx, initiator.ID)
	if err != nil {
		t.Fatalf("CountMine failed: %v", err)
	}
	if counts.Total != 3 || counts.Approved != 1 || counts.Pending != 1 || counts.Rejected != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestGetRequestDetail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db, &recordSender{})
	ctx := context.Background()

	initiator := testutil.SeedUser(t, db, "Dana", "dana@cbl.com")
	alice := testutil.SeedUser(t, db, "Alice", "alice@cbl.com")
	rt := testutil.SeedRequestType(t, db, entity.PassKindOutward)
	testutil.SeedChain(t, db, rt.ID, alice.ID)

	result, err := svc.Create(ctx, initiator.ID, outwardReq())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Decide(ctx, alice.ID, result.RequestID, entity.DecisionApproved, "looks fine"); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	detail, err := svc.Get(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if detail.Status != entity.RequestStatusApproved {
		t.Errorf("expected approved, got %s", detail.Status)
	}
	if detail.Type != entity.PassKindOutward {
		t.Errorf("expected outward, got %s", detail.Type)
	}
	if detail.Initiator != "Dana" {
		t.Errorf("expected initiator Dana, got %s", detail.Initiator)
	}
	if len(detail.Approvals) != 1 || detail.Approvals[0].Comments != "looks fine" {
		t.Errorf("unexpected approvals: %+v", detail.Approvals)
	}

	if _, err := svc.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}
