package approval

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/storage/memory"
)

var (
	owner      = domain.Actor{UserID: "builder-1", Role: domain.RoleUser}
	stranger   = domain.Actor{UserID: "stranger", Role: domain.RoleUser}
	specialist = domain.Actor{UserID: "spec-1", Role: domain.RoleSpecialist}
	admin      = domain.Actor{UserID: "root", Role: domain.RoleAdmin}
)

type fixture struct {
	service *Service
	stock   *memory.StockRepository
	audit   domain.AuditRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stock := memory.NewStockRepository()
	audit := memory.NewAuditRepository()

	for _, item := range []domain.StockItem{
		{ID: "cpu-1", Kind: domain.ProductKindComponent, Name: "Ryzen 9", PriceMinor: 45_990_00, Quantity: 10},
		{ID: "gpu-1", Kind: domain.ProductKindComponent, Name: "RTX 5080", PriceMinor: 129_990_00, Quantity: 10},
	} {
		if _, err := stock.Upsert(item); err != nil {
			t.Fatalf("seed stock %s: %v", item.ID, err)
		}
	}

	return &fixture{
		service: NewServiceWithoutMetrics(memory.NewConfigurationRepository(), stock, audit, nil),
		stock:   stock,
		audit:   audit,
	}
}

func (f *fixture) draft(t *testing.T) domain.Configuration {
	t.Helper()
	cfg, err := f.service.Create(owner, []ComponentLine{
		{StockItemID: "cpu-1", Qty: 1},
		{StockItemID: "gpu-1", Qty: 1},
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return cfg
}

func (f *fixture) submitted(t *testing.T) domain.Configuration {
	t.Helper()
	cfg := f.draft(t)
	submitted, err := f.service.Submit(owner, cfg.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return submitted
}

func (f *fixture) approved(t *testing.T) domain.Configuration {
	t.Helper()
	cfg := f.submitted(t)
	approved, err := f.service.Approve(specialist, cfg.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return approved
}

func TestCreate_DraftWithServerSidePrices(t *testing.T) {
	f := newFixture(t)

	cfg := f.draft(t)
	if cfg.Status != domain.ConfigurationStatusDraft {
		t.Fatalf("expected DRAFT, got %s", cfg.Status)
	}
	if cfg.TotalMinor != 45_990_00+129_990_00 {
		t.Fatalf("unexpected total: %d", cfg.TotalMinor)
	}
	for _, item := range cfg.Items {
		if item.PriceMinor == 0 {
			t.Fatalf("price was not resolved from catalog: %+v", item)
		}
	}
}

func TestCreate_Gates(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.Create(domain.Actor{}, []ComponentLine{{StockItemID: "cpu-1", Qty: 1}}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("anonymous create must be rejected, got %v", err)
	}
	if _, err := f.service.Create(owner, nil); !errors.Is(err, domain.ErrItemsRequired) {
		t.Fatalf("empty configuration must be rejected, got %v", err)
	}
	if _, err := f.service.Create(owner, []ComponentLine{{StockItemID: "ghost", Qty: 1}}); !errors.Is(err, domain.ErrStockItemNotFound) {
		t.Fatalf("unknown component must be rejected, got %v", err)
	}
}

func TestUpdateComponents_RecomputesTotal(t *testing.T) {
	f := newFixture(t)
	cfg := f.draft(t)

	updated, err := f.service.UpdateComponents(owner, cfg.ID, []ComponentLine{
		{StockItemID: "cpu-1", Qty: 2},
	})
	if err != nil {
		t.Fatalf("update components: %v", err)
	}
	if updated.TotalMinor != 2*45_990_00 {
		t.Fatalf("total was not recomputed: %d", updated.TotalMinor)
	}
	if len(updated.Items) != 1 {
		t.Fatalf("items were not replaced: %+v", updated.Items)
	}
}

func TestUpdateComponents_DraftOnlyAndOwnerOnly(t *testing.T) {
	f := newFixture(t)

	cfg := f.submitted(t)
	if _, err := f.service.UpdateComponents(owner, cfg.ID, []ComponentLine{{StockItemID: "cpu-1", Qty: 1}}); !domain.IsIllegalTransition(err) {
		t.Fatalf("submitted configuration must not be editable, got %v", err)
	}

	draft := f.draft(t)
	if _, err := f.service.UpdateComponents(stranger, draft.ID, []ComponentLine{{StockItemID: "cpu-1", Qty: 1}}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger edit must be rejected, got %v", err)
	}
}

func TestSubmitApproveFlow(t *testing.T) {
	f := newFixture(t)

	cfg := f.submitted(t)
	if cfg.Status != domain.ConfigurationStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", cfg.Status)
	}

	approved, err := f.service.Approve(specialist, cfg.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.ConfigurationStatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}

	trail, _ := f.audit.ListByEntity(domain.AuditEntityConfiguration, cfg.ID)
	if len(trail) != 2 {
		t.Fatalf("expected submit+approve audit rows, got %+v", trail)
	}
	if trail[0].Action != domain.AuditActionConfigSubmitted || trail[1].Action != domain.AuditActionConfigApproved {
		t.Fatalf("unexpected audit actions: %+v", trail)
	}
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	cfg := f.submitted(t)

	if _, err := f.service.Reject(specialist, cfg.ID, ""); !errors.Is(err, domain.ErrRejectReasonRequired) {
		t.Fatalf("expected ErrRejectReasonRequired, got %v", err)
	}

	rejected, err := f.service.Reject(specialist, cfg.ID, "incompatible socket")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.ConfigurationStatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}
	if rejected.RejectReason != "incompatible socket" {
		t.Fatalf("reason was not stored: %+v", rejected)
	}
}

func TestTransitions_RoleGates(t *testing.T) {
	f := newFixture(t)

	cfg := f.submitted(t)
	if _, err := f.service.Approve(owner, cfg.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("regular user must not approve, got %v", err)
	}
	if _, err := f.service.Reject(owner, cfg.ID, "nope"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("regular user must not reject, got %v", err)
	}

	draft := f.draft(t)
	if _, err := f.service.Submit(stranger, draft.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger must not submit, got %v", err)
	}

	// Админ проходит все вороты.
	if _, err := f.service.Approve(admin, cfg.ID); err != nil {
		t.Fatalf("admin approve: %v", err)
	}
}

func TestTransitions_IllegalPairsRejectedWithoutMutation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		run  func(t *testing.T) (domain.Configuration, error)
	}{
		{
			name: "approve draft",
			run: func(t *testing.T) (domain.Configuration, error) {
				cfg := f.draft(t)
				_, err := f.service.Approve(specialist, cfg.ID)
				return cfg, err
			},
		},
		{
			name: "reject draft",
			run: func(t *testing.T) (domain.Configuration, error) {
				cfg := f.draft(t)
				_, err := f.service.Reject(specialist, cfg.ID, "early")
				return cfg, err
			},
		},
		{
			name: "submit twice",
			run: func(t *testing.T) (domain.Configuration, error) {
				cfg := f.submitted(t)
				_, err := f.service.Submit(owner, cfg.ID)
				return cfg, err
			},
		},
		{
			name: "publish submitted",
			run: func(t *testing.T) (domain.Configuration, error) {
				cfg := f.submitted(t)
				_, err := f.service.Publish(specialist, cfg.ID)
				return cfg, err
			},
		},
		{
			name: "approve approved",
			run: func(t *testing.T) (domain.Configuration, error) {
				cfg := f.approved(t)
				_, err := f.service.Approve(specialist, cfg.ID)
				return cfg, err
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before, err := tc.run(t)
			if !domain.IsIllegalTransition(err) {
				t.Fatalf("expected IllegalTransitionError, got %v", err)
			}
			after, getErr := f.service.Get(admin, before.ID)
			if getErr != nil {
				t.Fatalf("get after illegal transition: %v", getErr)
			}
			if after.Status != before.Status || after.Version != before.Version {
				t.Fatalf("illegal transition mutated state: before=%+v after=%+v", before, after)
			}
		})
	}
}

func TestPublish_VisibleInPublicList(t *testing.T) {
	f := newFixture(t)
	cfg := f.approved(t)

	published, err := f.service.Publish(specialist, cfg.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !published.IsPublic || published.Status != domain.ConfigurationStatusApproved {
		t.Fatalf("unexpected published state: %+v", published)
	}

	listed, err := f.service.ListPublic(10)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != cfg.ID {
		t.Fatalf("published configuration missing from list: %+v", listed)
	}

	// Опубликованную сборку видит любой пользователь.
	if _, err := f.service.Get(stranger, cfg.ID); err != nil {
		t.Fatalf("public configuration must be readable: %v", err)
	}
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	cfg := f.draft(t)

	if _, err := f.service.Get(owner, cfg.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.service.Get(specialist, cfg.ID); err != nil {
		t.Fatalf("reviewer read: %v", err)
	}
	if _, err := f.service.Get(stranger, cfg.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger read must be rejected, got %v", err)
	}
	if _, err := f.service.Get(owner, "missing"); !errors.Is(err, domain.ErrConfigurationNotFound) {
		t.Fatalf("expected ErrConfigurationNotFound, got %v", err)
	}
}
