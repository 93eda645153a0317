package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/testutil"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/mail"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/outbox"
)

// fakeSender counts deliveries and can be told to fail.
type fakeSender struct {
	mu    sync.Mutex
	sent  []mail.Message
	fail  error
	delay time.Duration
}

func (f *fakeSender) Send(ctx context.Context, msg mail.Message) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func testMessage() mail.Message {
	return mail.Message{
		To:      []string{"einkauf@supplier.example"},
		Subject: "Bestellung KO-1001",
		Text:    "Positionen siehe Anhang",
	}
}

func TestQueueAndSendDeliversOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &fakeSender{}
	d := outbox.NewDispatcher(outbox.NewRepository(db), sender, zap.NewNop(), 0)
	ctx := context.Background()

	first, err := d.QueueAndSend(ctx, "user-1", "supplier_order", "dedupe-once", testMessage(), nil)
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	if first.AlreadySent {
		t.Fatal("first send reported as already sent")
	}

	second, err := d.QueueAndSend(ctx, "user-1", "supplier_order", "dedupe-once", testMessage(), nil)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if !second.AlreadySent {
		t.Fatal("second send did not short-circuit")
	}
	if second.ProviderMessageID != first.ProviderMessageID {
		t.Fatalf("second send returned a different provider id: %q vs %q", second.ProviderMessageID, first.ProviderMessageID)
	}
	if got := sender.count(); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
}

func TestQueueAndSendConcurrentDedupe(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &fakeSender{delay: 20 * time.Millisecond}
	d := outbox.NewDispatcher(outbox.NewRepository(db), sender, zap.NewNop(), 0)

	const workers = 6
	var wg sync.WaitGroup
	results := make([]*outbox.Result, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.QueueAndSend(context.Background(), "user-1", "supplier_order", "dedupe-race", testMessage(), nil)
		}(i)
	}
	wg.Wait()

	// Exactly one worker may win; the rest either observe the finished
	// send or get ErrBusy while the winner still holds the claim.
	winners := 0
	for i := 0; i < workers; i++ {
		switch {
		case errs[i] == nil && !results[i].AlreadySent:
			winners++
		case errs[i] == nil && results[i].AlreadySent:
		case errors.Is(errs[i], outbox.ErrBusy):
		default:
			t.Fatalf("worker %d: unexpected error %v", i, errs[i])
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}
	if got := sender.count(); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
}

func TestFailedSendIsRetriable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sender := &fakeSender{}
	sender.setFail(errors.New("smtp unavailable"))
	d := outbox.NewDispatcher(outbox.NewRepository(db), sender, zap.NewNop(), 0)
	ctx := context.Background()

	_, err := d.QueueAndSend(ctx, "user-1", "supplier_order", "dedupe-retry", testMessage(), nil)
	if err == nil {
		t.Fatal("send succeeded although the provider failed")
	}

	entry, err := outbox.NewRepository(db).FindByDedupeKey(ctx, "dedupe-retry")
	if err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Status != outbox.StatusFailed {
		t.Fatalf("entry status %q, want %q", entry.Status, outbox.StatusFailed)
	}
	if entry.LastError == "" {
		t.Fatal("failure reason not recorded")
	}

	// The provider recovers; the retry delivers exactly once.
	sender.setFail(nil)
	result, err := d.QueueAndSend(ctx, "user-1", "supplier_order", "dedupe-retry", testMessage(), nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.AlreadySent {
		t.Fatal("retry of a failed entry must be a fresh delivery")
	}
	if got := sender.count(); got != 1 {
		t.Fatalf("provider delivered %d times, want 1", got)
	}
}

func TestProcessBatchSweepsQueuedAndFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := outbox.NewRepository(db)
	sender := &fakeSender{}
	d := outbox.NewDispatcher(repo, sender, zap.NewNop(), 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("sweep-%d", i)
		entry := &outbox.Entry{
			ID:        fmt.Sprintf("entry-sweep-%d", i),
			Kind:      "supplier_order",
			Status:    outbox.StatusQueued,
			DedupeKey: &key,
			Payload:   outbox.Payload(testMessage()),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}

	stats, err := d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Processed != 3 || stats.Sent != 3 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if got := sender.count(); got != 3 {
		t.Fatalf("provider delivered %d times, want 3", got)
	}

	// A second sweep finds nothing left.
	stats, err = d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("second sweep processed %d entries, want 0", stats.Processed)
	}
}

func TestStaleProcessingClaimIsReclaimed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := outbox.NewRepository(db)
	sender := &fakeSender{}
	d := outbox.NewDispatcher(repo, sender, zap.NewNop(), 5*time.Minute)
	ctx := context.Background()

	stale := time.Now().Add(-20 * time.Minute)
	key := "stale-claim"
	entry := &outbox.Entry{
		ID:                  "entry-stale",
		Kind:                "supplier_order",
		Status:              outbox.StatusProcessing,
		DedupeKey:           &key,
		Payload:             outbox.Payload(testMessage()),
		ProcessingStartedAt: &stale,
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	result, err := d.Dispatch(ctx, "entry-stale")
	if err != nil {
		t.Fatalf("dispatch stale entry: %v", err)
	}
	if result.AlreadySent {
		t.Fatal("stale entry was never sent before")
	}
	if got := sender.count(); got != 1 {
		t.Fatalf("provider delivered %d times, want 1", got)
	}
}

func TestFreshProcessingClaimIsBusy(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := outbox.NewRepository(db)
	d := outbox.NewDispatcher(repo, &fakeSender{}, zap.NewNop(), 5*time.Minute)
	ctx := context.Background()

	now := time.Now()
	key := "live-claim"
	entry := &outbox.Entry{
		ID:                  "entry-live",
		Kind:                "supplier_order",
		Status:              outbox.StatusProcessing,
		DedupeKey:           &key,
		Payload:             outbox.Payload(testMessage()),
		ProcessingStartedAt: &now,
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	_, err := d.Dispatch(ctx, "entry-live")
	if !errors.Is(err, outbox.ErrBusy) {
		t.Fatalf("got %v, want ErrBusy", err)
	}
}
