package memory

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

func TestConfigurationRepository_OptimisticLocking(t *testing.T) {
	repo := NewConfigurationRepository()

	cfg := domain.Configuration{
		ID:     "cfg-1",
		UserID: "user-1",
		Status: domain.ConfigurationStatusDraft,
	}
	if err := repo.Create(cfg); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(cfg); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("duplicate create must conflict, got %v", err)
	}

	loaded, err := repo.Get("cfg-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	loaded.Status = domain.ConfigurationStatusSubmitted
	if err := repo.Save(loaded); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Сохранение с устаревшей версией отклоняется.
	stale := loaded
	stale.Status = domain.ConfigurationStatusDraft
	if err := repo.Save(stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale save must conflict, got %v", err)
	}
}

func TestConfigurationRepository_ListPublic(t *testing.T) {
	repo := NewConfigurationRepository()

	for _, cfg := range []domain.Configuration{
		{ID: "cfg-1", UserID: "u", Status: domain.ConfigurationStatusApproved, IsPublic: true},
		{ID: "cfg-2", UserID: "u", Status: domain.ConfigurationStatusDraft},
	} {
		if err := repo.Create(cfg); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	public, err := repo.ListPublic(0)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(public) != 1 || public[0].ID != "cfg-1" {
		t.Fatalf("expected only cfg-1 to be public, got %v", public)
	}
}

func TestWebhookEventRepository_Dedupe(t *testing.T) {
	repo := NewWebhookEventRepository()

	first, err := repo.MarkProcessed(domain.ProcessedEvent{EventID: "evt-1", EventType: domain.PaymentEventSucceeded})
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !first {
		t.Fatal("first delivery must be marked as new")
	}

	second, err := repo.MarkProcessed(domain.ProcessedEvent{EventID: "evt-1", EventType: domain.PaymentEventSucceeded})
	if err != nil {
		t.Fatalf("mark processed again: %v", err)
	}
	if second {
		t.Fatal("redelivery must be detected as duplicate")
	}
}

func TestWebhookEventRepository_Seen(t *testing.T) {
	repo := NewWebhookEventRepository()

	seen, err := repo.Seen("evt-1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("unknown event must not be seen")
	}

	if _, err := repo.MarkProcessed(domain.ProcessedEvent{EventID: "evt-1", EventType: domain.PaymentEventSucceeded}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	seen, err = repo.Seen("evt-1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Fatal("processed event must be seen")
	}
}

func TestAuditRepository_AppendOnly(t *testing.T) {
	repo := NewAuditRepository()

	details, _ := json.Marshal(map[string]string{"reason": "test"})
	entry := domain.AuditEntry{
		Action:     domain.AuditActionOrderCancelled,
		EntityType: domain.AuditEntityOrder,
		EntityID:   "order-1",
		ActorID:    "user-1",
		ActorRole:  domain.RoleUser,
		Details:    details,
	}
	if err := repo.Append(entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(entry); err != nil {
		t.Fatalf("append twice: %v", err)
	}

	entries, err := repo.ListByEntity(domain.AuditEntityOrder, "order-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatal("append must fill id and timestamp")
	}
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	repo := NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.created",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("enqueue must assign id")
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	pending, _ = repo.PullPending(10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending after MarkSent, got %d", len(pending))
	}

	if err := repo.MarkFailed("missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("unknown id must fail, got %v", err)
	}
}
