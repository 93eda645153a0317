package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/repository"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/testutil"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/mail"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/outbox"
)

// stubSender is an in-memory mail provider for service tests.
type stubSender struct {
	mu   sync.Mutex
	sent []mail.Message
	fail error
}

func (f *stubSender) Send(ctx context.Context, msg mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("stub-%d", len(f.sent)), nil
}

func (f *stubSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type serviceEnv struct {
	db      *gorm.DB
	repos   *repository.Repositories
	sender  *stubSender
	orders  *OrderService
	receipt *ReceiptService
	actor   Actor
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	sender := &stubSender{}
	dispatcher := outbox.NewDispatcher(outbox.NewRepository(db), sender, zap.NewNop(), 0)
	return &serviceEnv{
		db:      db,
		repos:   repos,
		sender:  sender,
		orders:  NewOrderService(repos, dispatcher, zap.NewNop(), "Küchenstudio Test"),
		receipt: NewReceiptService(repos, zap.NewNop()),
		actor:   Actor{UserID: testutil.TestUserID, CompanyID: testutil.TestCompanyID},
	}
}

// seedProjectWithSupplier creates a project with two line items resolving
// to one supplier through their article.
func seedProjectWithSupplier(t *testing.T, env *serviceEnv) (projectID, supplierID string) {
	t.Helper()
	install := time.Now().AddDate(0, 0, 21)
	testutil.SeedProject(t, env.db, "proj-svc-1", "Familie Berger", &install)
	testutil.SeedSupplier(t, env.db, "sup-svc-1", "Miele Vertrieb", "bestellung@miele.example")
	supID := "sup-svc-1"
	testutil.SeedArticle(t, env.db, "art-svc-1", "Geschirrspüler G 7110", &supID)
	testutil.SeedArticle(t, env.db, "art-svc-2", "Backofen H 2861", &supID)
	art1, art2 := "art-svc-1", "art-svc-2"
	testutil.SeedLineItem(t, env.db, "li-svc-1", "proj-svc-1", &art1, 1)
	testutil.SeedLineItem(t, env.db, "li-svc-2", "proj-svc-1", &art2, 2)
	return "proj-svc-1", "sup-svc-1"
}

func TestEnsureOrderCreatesDraftWithPositions(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	if order.Status != entity.OrderDraft {
		t.Fatalf("status %q, want %q", order.Status, entity.OrderDraft)
	}
	if len(order.Items) != 2 {
		t.Fatalf("got %d positions, want 2", len(order.Items))
	}
	if order.OrderNo != "KO-proj-svc-1-LSUP-" {
		t.Fatalf("unexpected order number %q", order.OrderNo)
	}

	// A second ensure merges into the same live order instead of
	// creating a twin.
	again, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("second EnsureOrder: %v", err)
	}
	if again.ID != order.ID {
		t.Fatalf("second ensure created a new order: %s vs %s", again.ID, order.ID)
	}
}

func TestEnsureOrderWithoutPositionsIsValidation(t *testing.T) {
	env := newServiceEnv(t)
	install := time.Now().AddDate(0, 0, 14)
	testutil.SeedProject(t, env.db, "proj-empty", "Familie Leitner", &install)
	testutil.SeedSupplier(t, env.db, "sup-empty", "Naber", "order@naber.example")

	_, err := env.orders.EnsureOrder(context.Background(), env.actor, "proj-empty", "sup-empty")
	if KindOf(err) != KindValidation {
		t.Fatalf("got kind %q (%v), want VALIDATION", KindOf(err), err)
	}
}

func TestSendOrderDeliversAndMarksItems(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}

	result, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", "first-send")
	if err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	if result.AlreadySent {
		t.Fatal("first send reported as already sent")
	}
	if result.Recipient != "bestellung@miele.example" {
		t.Fatalf("recipient %q, want supplier order email", result.Recipient)
	}
	if env.sender.count() != 1 {
		t.Fatalf("provider called %d times, want 1", env.sender.count())
	}

	items, err := env.repos.LineItem.FindByProject(ctx, projectID)
	if err != nil {
		t.Fatalf("reload items: %v", err)
	}
	for _, li := range items {
		if li.DeliveryStatus != entity.ItemOrdered {
			t.Fatalf("item %s status %q, want %q", li.ID, li.DeliveryStatus, entity.ItemOrdered)
		}
		if li.QuantityOrdered < li.EffectiveQuantity() {
			t.Fatalf("item %s ordered %g below quantity %g", li.ID, li.QuantityOrdered, li.EffectiveQuantity())
		}
	}

	project, err := env.repos.Project.FindByID(ctx, projectID)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if project.DeliveryStatus != entity.ProjectDeliveryFullyOrdered {
		t.Fatalf("project delivery %q, want %q", project.DeliveryStatus, entity.ProjectDeliveryFullyOrdered)
	}
}

func TestSendOrderKeepsMissingItemsFlagged(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}

	// li-svc-2 was flagged missing before the order went out; sending
	// must not downgrade it to a plain ordered state.
	if err := env.db.Model(&entity.LineItem{}).
		Where("id = ?", "li-svc-2").
		Update("delivery_status", entity.ItemMissing).Error; err != nil {
		t.Fatalf("flag missing: %v", err)
	}

	if _, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	flagged, err := env.repos.LineItem.FindByID(ctx, "li-svc-2")
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if flagged.DeliveryStatus != entity.ItemMissing {
		t.Fatalf("item status %q after send, want %q", flagged.DeliveryStatus, entity.ItemMissing)
	}
	plain, err := env.repos.LineItem.FindByID(ctx, "li-svc-1")
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if plain.DeliveryStatus != entity.ItemOrdered {
		t.Fatalf("item status %q after send, want %q", plain.DeliveryStatus, entity.ItemOrdered)
	}
}

func TestSendOrderReplaySameKeySendsOnce(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	first, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", "key-replay")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}

	second, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", "key-replay")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.AlreadySent {
		t.Fatal("replay with the same key must not count as a fresh send")
	}
	if env.sender.count() != 1 {
		t.Fatalf("provider called %d times, want 1", env.sender.count())
	}
	if second.SentAt == nil || first.SentAt == nil {
		t.Fatal("sent_at missing")
	}

	// A different key is a deliberate resend.
	third, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", "key-resend")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if third.AlreadySent {
		t.Fatal("new key must send again")
	}
	if env.sender.count() != 2 {
		t.Fatalf("provider called %d times, want 2", env.sender.count())
	}
}

func TestSendOrderWithoutRecipientIsValidation(t *testing.T) {
	env := newServiceEnv(t)
	install := time.Now().AddDate(0, 0, 14)
	testutil.SeedProject(t, env.db, "proj-norecip", "Familie Auer", &install)
	testutil.SeedSupplier(t, env.db, "sup-norecip", "Regionaler Tischler", "")
	supID := "sup-norecip"
	testutil.SeedArticle(t, env.db, "art-norecip", "Arbeitsplatte Eiche", &supID)
	artID := "art-norecip"
	testutil.SeedLineItem(t, env.db, "li-norecip", "proj-norecip", &artID, 1)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, "proj-norecip", "sup-norecip")
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	_, err = env.orders.SendOrder(ctx, env.actor, order.ID, "", "")
	if KindOf(err) != KindValidation {
		t.Fatalf("got kind %q (%v), want VALIDATION", KindOf(err), err)
	}
	if env.sender.count() != 0 {
		t.Fatal("provider must not be called without a recipient")
	}

	// The override unblocks the send.
	result, err := env.orders.SendOrder(ctx, env.actor, order.ID, "werkstatt@tischler.example", "")
	if err != nil {
		t.Fatalf("send with override: %v", err)
	}
	if result.Recipient != "werkstatt@tischler.example" {
		t.Fatalf("recipient %q, want override", result.Recipient)
	}
}

func TestSendOrderProviderFailureLeavesStatePending(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}

	env.sender.fail = errors.New("smtp timeout")
	if _, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", "key-fail"); err == nil {
		t.Fatal("send succeeded although the provider failed")
	}

	reloaded, err := env.orders.GetOrder(ctx, env.actor, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.SentAt != nil {
		t.Fatal("sent_at set although nothing was delivered")
	}

	// Retrying the same key after the provider recovers sends exactly once.
	env.sender.fail = nil
	result, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", "key-fail")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.AlreadySent {
		t.Fatal("retry after failure must be a fresh delivery")
	}
	if env.sender.count() != 1 {
		t.Fatalf("provider called %d times, want 1", env.sender.count())
	}
}

func TestMarkExternallyOrderedIsIdempotent(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}

	first, err := env.orders.MarkExternallyOrdered(ctx, env.actor, order.ID, "mark-1", "telefonisch bestellt")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if first.AlreadySent {
		t.Fatal("first mark reported as replay")
	}
	if first.SentAt == nil {
		t.Fatal("mark did not stamp sent_at")
	}

	second, err := env.orders.MarkExternallyOrdered(ctx, env.actor, order.ID, "mark-1", "")
	if err != nil {
		t.Fatalf("repeat mark: %v", err)
	}
	if !second.AlreadySent {
		t.Fatal("repeat mark with the same key must replay")
	}
	if second.SentAt == nil || second.SentAt.Sub(*first.SentAt).Abs() > time.Second {
		t.Fatalf("replay moved sent_at: %v vs %v", second.SentAt, first.SentAt)
	}
	if env.sender.count() != 0 {
		t.Fatal("external mark must never send mail")
	}

	reloaded, err := env.orders.GetOrder(ctx, env.actor, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != entity.OrderSent {
		t.Fatalf("status %q, want %q", reloaded.Status, entity.OrderSent)
	}
}

func TestCancelOrderItemsRejectsOverflow(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}

	var twoUnits *entity.SupplierOrderItem
	for i := range order.Items {
		if order.Items[i].Quantity == 2 {
			twoUnits = &order.Items[i]
		}
	}
	if twoUnits == nil {
		t.Fatal("expected a position with quantity 2")
	}

	// Above the remaining quantity: the whole call fails, nothing is
	// written.
	_, err = env.orders.CancelOrderItems(ctx, env.actor, order.ID, map[string]float64{twoUnits.ID: 3})
	if KindOf(err) != KindValidation {
		t.Fatalf("got kind %q (%v), want VALIDATION", KindOf(err), err)
	}
	reloaded, _ := env.orders.GetOrder(ctx, env.actor, order.ID)
	for _, it := range reloaded.Items {
		if it.QuantityCancelled != 0 {
			t.Fatalf("position %s was touched by a rejected call", it.ID)
		}
	}

	// A partial cancellation within the remainder is applied.
	updated, err := env.orders.CancelOrderItems(ctx, env.actor, order.ID, map[string]float64{twoUnits.ID: 1})
	if err != nil {
		t.Fatalf("partial cancel: %v", err)
	}
	for _, it := range updated.Items {
		if it.ID == twoUnits.ID && it.QuantityCancelled != 1 {
			t.Fatalf("cancelled %g, want 1", it.QuantityCancelled)
		}
	}

	// The remainder shrank; the old amount now overflows again.
	_, err = env.orders.CancelOrderItems(ctx, env.actor, order.ID, map[string]float64{twoUnits.ID: 2})
	if KindOf(err) != KindValidation {
		t.Fatalf("got kind %q (%v), want VALIDATION", KindOf(err), err)
	}
}

func TestCancelOrderIsTerminal(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	cancelled, err := env.orders.CancelOrder(ctx, env.actor, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.OrderCancelled {
		t.Fatalf("status %q, want %q", cancelled.Status, entity.OrderCancelled)
	}

	// Cancel is idempotent, every other mutation refuses.
	if _, err := env.orders.CancelOrder(ctx, env.actor, order.ID); err != nil {
		t.Fatalf("repeated cancel: %v", err)
	}
	if _, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", ""); KindOf(err) != KindValidation {
		t.Fatalf("send on cancelled order: got %v, want VALIDATION", err)
	}
	if _, err := env.orders.CaptureAB(ctx, env.actor, order.ID, CaptureABInput{ABNumber: "AB-1"}); KindOf(err) != KindValidation {
		t.Fatalf("AB on cancelled order: got %v, want VALIDATION", err)
	}
}

func TestEnsureOrderAfterCancelStartsReplacement(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	first, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	if _, err := env.orders.CancelOrder(ctx, env.actor, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// The cancelled order is superseded: ensuring again opens a fresh
	// draft instead of reviving or colliding with the old one.
	second, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder after cancel: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("replacement reused cancelled order %s", first.ID)
	}
	if second.Status != entity.OrderDraft {
		t.Fatalf("replacement status %q, want %q", second.Status, entity.OrderDraft)
	}
	if second.OrderNo == first.OrderNo {
		t.Fatalf("replacement reused order number %q", first.OrderNo)
	}
	if second.OrderNo != first.OrderNo+"-2" {
		t.Fatalf("replacement order number %q, want %q", second.OrderNo, first.OrderNo+"-2")
	}

	// A third ensure merges into the live replacement.
	third, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder on live replacement: %v", err)
	}
	if third.ID != second.ID {
		t.Fatalf("got order %s, want live replacement %s", third.ID, second.ID)
	}
}

func TestCaptureABAdvancesOrder(t *testing.T) {
	env := newServiceEnv(t)
	projectID, supplierID := seedProjectWithSupplier(t, env)
	ctx := context.Background()

	order, err := env.orders.EnsureOrder(ctx, env.actor, projectID, supplierID)
	if err != nil {
		t.Fatalf("EnsureOrder: %v", err)
	}
	if _, err := env.orders.SendOrder(ctx, env.actor, order.ID, "", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	confirmed := time.Now().AddDate(0, 0, 10)
	updated, err := env.orders.CaptureAB(ctx, env.actor, order.ID, CaptureABInput{
		ABNumber:      "AB-2025-0815",
		ConfirmedDate: &confirmed,
		Deviations:    entity.DeviationList{{Field: "delivery_date", Note: "eine Woche später"}},
	})
	if err != nil {
		t.Fatalf("CaptureAB: %v", err)
	}
	if updated.Status != entity.OrderABReceived {
		t.Fatalf("status %q, want %q", updated.Status, entity.OrderABReceived)
	}
	if updated.ABNumber != "AB-2025-0815" {
		t.Fatalf("ab number %q", updated.ABNumber)
	}
	if updated.ConfirmedDate == nil {
		t.Fatal("confirmed date not stored")
	}

	// Empty AB input is rejected.
	if _, err := env.orders.CaptureAB(ctx, env.actor, order.ID, CaptureABInput{}); KindOf(err) != KindValidation {
		t.Fatalf("empty AB: got %v, want VALIDATION", err)
	}
}

func TestOrderServiceRequiresActor(t *testing.T) {
	env := newServiceEnv(t)
	_, err := env.orders.ListOrders(context.Background(), Actor{})
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("got kind %q (%v), want UNAUTHORIZED", KindOf(err), err)
	}
}
